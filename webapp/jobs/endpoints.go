package jobs

import (
	"context"
	"net/http"

	"github.com/guardian/jobpanel/webapp/coordinator"
)

type JobOverviewer interface {
	Overview(ctx context.Context) (*coordinator.Overview, error)
}

type JobLogReader interface {
	JobLogs(ctx context.Context, jobName string, tailLines *int64) (*coordinator.JobLogs, error)
}

type JobDeleter interface {
	DeleteJob(ctx context.Context, jobName string) error
}

/**
JobService is everything the jobs api needs; *coordinator.Coordinator satisfies it
*/
type JobService interface {
	JobOverviewer
	JobLogReader
	JobDeleter
}

type JobsEndpoints struct {
	ListHandler   ListJobsHandler
	LogsHandler   GetLogsHandler
	DeleteHandler DeleteJobHandler
}

func NewJobsEndpoints(service JobService) JobsEndpoints {
	return JobsEndpoints{
		ListHandler:   ListJobsHandler{service},
		LogsHandler:   GetLogsHandler{service},
		DeleteHandler: DeleteJobHandler{service},
	}
}

func (e JobsEndpoints) WireUp(mux *http.ServeMux, baseUrlPath string) {
	mux.Handle("GET "+baseUrlPath, e.ListHandler)
	mux.Handle("GET "+baseUrlPath+"/{job}/logs", e.LogsHandler)
	mux.Handle("DELETE "+baseUrlPath+"/{job}", e.DeleteHandler)
}
