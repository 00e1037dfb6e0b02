package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	eventdomain "github.com/smallbiznis/beacon/internal/event/domain"
)

type ingestSuccessResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
	Message  string `json:"message"`
}

type ingestPartialResponse struct {
	Status   string             `json:"status"`
	Accepted int                `json:"accepted"`
	Rejected int                `json:"rejected"`
	Errors   []eventErrorDetail `json:"errors"`
}

type eventErrorDetail struct {
	EventID uuid.UUID `json:"event_id"`
	Error   string    `json:"error"`
	Message string    `json:"message"`
}

// Ingest accepts a signed batch of telemetry events. Authentication and
// freshness have already been enforced by HMACRequired.
func (s *Server) Ingest(c *gin.Context) {
	cred, ok := credentialFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := snowflake.ParseString(c.Param("org_id"))
	if err != nil {
		AbortWithError(c, newValidationError("org_id", "invalid_org_id", "org_id is not a valid id"))
		return
	}
	appID, err := snowflake.ParseString(c.Param("app_id"))
	if err != nil {
		AbortWithError(c, newValidationError("app_id", "invalid_app_id", "app_id is not a valid id"))
		return
	}

	if orgID != cred.OrgID || appID != cred.AppID {
		s.denyRequest(c, "forbidden", ErrForbidden)
		return
	}

	var batch eventdomain.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not a valid event batch"))
		return
	}

	if raw := strings.TrimSpace(c.GetHeader(headerBatchSize)); raw != "" {
		declared, err := strconv.Atoi(raw)
		if err != nil || declared != len(batch.Events) {
			AbortWithError(c, newValidationError("X-Batch-Size", "batch_size_mismatch", "X-Batch-Size header does not match actual batch size"))
			return
		}
	}

	// Bounds are checked before the DNT short-circuit: a structurally invalid
	// batch is a client error even when its contents would be dropped.
	if n := len(batch.Events); n < eventdomain.MinBatchSize || n > eventdomain.MaxBatchSize {
		AbortWithError(c, eventdomain.ErrBatchSize)
		return
	}

	// Honor Do Not Track: acknowledge without persisting anything.
	if c.GetHeader("DNT") == "1" {
		c.Status(http.StatusNoContent)
		return
	}

	scope := eventdomain.Scope{
		CredentialID: cred.ID,
		OrgID:        cred.OrgID,
		AppID:        cred.AppID,
	}

	report, err := s.eventsvc.Ingest(c.Request.Context(), scope, batch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	failures := report.Failures()
	switch {
	case len(failures) == 0:
		c.JSON(http.StatusOK, ingestSuccessResponse{
			Status:   "success",
			Accepted: report.Accepted,
			Rejected: 0,
			Message:  "all events ingested successfully",
		})
	case report.Accepted > 0:
		c.JSON(http.StatusMultiStatus, ingestPartialResponse{
			Status:   "partial",
			Accepted: report.Accepted,
			Rejected: report.Rejected,
			Errors:   errorDetails(failures),
		})
	default:
		c.JSON(http.StatusBadRequest, ingestPartialResponse{
			Status:   "failed",
			Accepted: 0,
			Rejected: report.Rejected,
			Errors:   errorDetails(failures),
		})
	}
}

func errorDetails(failures []eventdomain.Result) []eventErrorDetail {
	out := make([]eventErrorDetail, 0, len(failures))
	for _, res := range failures {
		out = append(out, eventErrorDetail{
			EventID: res.EventID,
			Error:   res.Code,
			Message: res.Message,
		})
	}
	return out
}
