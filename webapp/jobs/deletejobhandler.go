package jobs

import (
	"errors"
	"log"
	"net/http"

	"github.com/guardian/jobpanel/common/helpers"
	"github.com/guardian/jobpanel/webapp/coordinator"
)

type DeleteJobResponse struct {
	Deleted bool   `json:"deleted"`
	Job     string `json:"job"`
}

type DeleteJobHandler struct {
	service JobDeleter
}

func (h DeleteJobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "DELETE") {
		return
	}

	jobName := r.PathValue("job")
	err := h.service.DeleteJob(r.Context(), jobName)
	if err != nil {
		if errors.Is(err, coordinator.ErrUnknownJob) {
			helpers.WriteJsonError("Unknown job", w, 404)
			return
		}
		log.Printf("ERROR DeleteJobHandler could not delete %s: %s", jobName, err)
		helpers.WriteJsonError(err.Error(), w, 500)
		return
	}

	helpers.WriteJsonContent(DeleteJobResponse{Deleted: true, Job: jobName}, w, 200)
}
