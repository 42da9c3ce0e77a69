package helpers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

/**
the body written for any failed api request
*/
type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteJsonContent(content interface{}, w http.ResponseWriter, statusCode int) {
	contentBytes, marshalErr := json.Marshal(content)
	if marshalErr != nil {
		log.Printf("Could not marshal content for json write: %s", marshalErr)
		return
	}

	w.Header().Add("Content-Type", "application/json")
	w.Header().Add("Content-Length", strconv.FormatInt(int64(len(contentBytes)), 10))
	w.WriteHeader(statusCode)
	_, writeErr := w.Write(contentBytes)
	if writeErr != nil {
		log.Printf("Could not write content to HTTP socket: %s", writeErr)
	}
}

func WriteJsonError(detail string, w http.ResponseWriter, statusCode int) {
	WriteJsonContent(ErrorResponse{Error: detail}, w, statusCode)
}

func AssertHttpMethod(request *http.Request, w http.ResponseWriter, method string) bool {
	if request.Method != method {
		log.Printf("Got a %s request, expecting %s", request.Method, method)
		WriteJsonError("wrong method type", w, 405)
		return false
	} else {
		return true
	}
}

/**
reads an optional integer query parameter. returns nil if the parameter is absent and an error
if it is present but not an integer
*/
func GetOptionalInt64Param(request *http.Request, name string) (*int64, error) {
	raw := request.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	value, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		return nil, parseErr
	}
	return &value, nil
}
