package jobs

import (
	"errors"
	"log"
	"net/http"

	"github.com/guardian/jobpanel/common/helpers"
	"github.com/guardian/jobpanel/webapp/coordinator"
)

type GetLogsHandler struct {
	service JobLogReader
}

func (h GetLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return
	}

	jobName := r.PathValue("job")
	tailLines, paramErr := helpers.GetOptionalInt64Param(r, "tailLines")
	if paramErr != nil || (tailLines != nil && *tailLines < 0) {
		helpers.WriteJsonError("tailLines must be a non-negative integer", w, 400)
		return
	}

	result, err := h.service.JobLogs(r.Context(), jobName, tailLines)
	if err != nil {
		if errors.Is(err, coordinator.ErrUnknownJob) {
			helpers.WriteJsonError("Unknown job", w, 404)
			return
		}
		log.Printf("ERROR GetLogsHandler could not get logs for %s: %s", jobName, err)
		helpers.WriteJsonError(err.Error(), w, 500)
		return
	}

	helpers.WriteJsonContent(result, w, 200)
}
