// Mailbox HTTP handlers.
//
// Mailboxes are derived views over created and saved messages:
//   - GET /mailbox/outgoing/{member-id}   (messages the member sent)
//   - GET /mailbox/receiving/{member-id}  (messages the member saved)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/witchdelivery/sendy-backend/internal/domain"
)

// ListOutgoingResponse wraps a page of outgoing mailbox records.
type ListOutgoingResponse struct {
	Outgoing   []domain.Outgoing `json:"outgoing"`
	Pagination Pagination        `json:"pagination"`
}

// ListReceivingResponse wraps a page of receiving mailbox records.
type ListReceivingResponse struct {
	Receiving  []domain.Receiving `json:"receiving"`
	Pagination Pagination         `json:"pagination"`
}

// ListOutgoing godoc
// @ID          listOutgoing
// @Summary     List a member's outgoing mailbox
// @Description Returns the member's sent-message records, newest first.
// @Tags        Mailbox
// @Produce     json
// @Param       member-id  path   int  true  "Member ID"
// @Param       page  query  int  false "Page number (1-based)"  minimum(1) default(1)
// @Param       size  query  int  false "Items per page"          minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListOutgoingResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Router      /mailbox/outgoing/{member-id} [get]
func (h *Handlers) ListOutgoing(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}
	page, size, valid := pagingParams(c)
	if !valid {
		return
	}

	items, total, err := h.mailboxSvc.ListOutgoing(c.Request.Context(), id, page, size)
	if err != nil {
		failService(c, err)
		return
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	ok(c, http.StatusOK, ListOutgoingResponse{
		Outgoing: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// ListReceiving godoc
// @ID          listReceiving
// @Summary     List a member's receiving mailbox
// @Description Returns the member's saved-message records, newest first.
// @Tags        Mailbox
// @Produce     json
// @Param       member-id  path   int  true  "Member ID"
// @Param       page  query  int  false "Page number (1-based)"  minimum(1) default(1)
// @Param       size  query  int  false "Items per page"          minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListReceivingResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Member not found"
// @Router      /mailbox/receiving/{member-id} [get]
func (h *Handlers) ListReceiving(c *gin.Context) {
	id, valid := pathID(c, "member-id")
	if !valid {
		return
	}
	page, size, valid := pagingParams(c)
	if !valid {
		return
	}

	items, total, err := h.mailboxSvc.ListReceiving(c.Request.Context(), id, page, size)
	if err != nil {
		failService(c, err)
		return
	}

	totalPages := int((total + int64(size) - 1) / int64(size))
	ok(c, http.StatusOK, ListReceivingResponse{
		Receiving: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}
