package httpapi

import (
	"net/http"
	"strconv"

	"github.com/unkn0wn-root/flashguard"
	"github.com/unkn0wn-root/flashguard/seckill"
)

type reservationAccepted struct {
	OrderID int64 `json:"order_id,string"`
}

type reservationRejected struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	resourceID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	requesterID, err := strconv.ParseInt(r.Header.Get(requesterHeader), 10, 64)
	if err != nil || requesterID <= 0 {
		writeError(w, http.StatusUnauthorized, "missing or invalid "+requesterHeader)
		return
	}

	res, err := h.reserver.ReserveAndSubmit(r.Context(), seckill.Requester{ID: requesterID}, resourceID)
	if err != nil {
		fields := flashguard.Fields{"resource_id": resourceID, "requester_id": requesterID, "err": err}
		if flashguard.IsTransient(err) {
			h.log.Warn("reservation failed", fields)
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
			return
		}
		h.log.Error("reservation failed", fields)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !res.Accepted {
		writeJSON(w, http.StatusConflict, reservationRejected{
			Error:  res.Reason.Err().Error(),
			Reason: res.Reason.String(),
		})
		return
	}
	writeJSON(w, http.StatusAccepted, reservationAccepted{OrderID: res.OrderID})
}
