package jobs

import (
	"log"
	"net/http"

	"github.com/guardian/jobpanel/common/helpers"
)

type ListJobsHandler struct {
	service JobOverviewer
}

func (h ListJobsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return
	}

	overview, err := h.service.Overview(r.Context())
	if err != nil {
		log.Printf("ERROR ListJobsHandler could not build job overview: %s", err)
		helpers.WriteJsonError(err.Error(), w, 500)
		return
	}

	helpers.WriteJsonContent(overview, w, 200)
}
