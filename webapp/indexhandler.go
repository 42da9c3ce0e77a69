package main

import (
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/guardian/jobpanel/common/helpers"
)

type IndexHandler struct {
	filePath       string
	contentType    string
	exactMatchPath string
}

func (h IndexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestPath := r.URL.Path

	if strings.HasPrefix(requestPath, "/api") {
		log.Printf("Access for invalid API path %s fell through to html handler, returning json 404", requestPath)
		helpers.WriteJsonError("invalid api endpoint", w, 404)
		return
	}

	if h.exactMatchPath != "" && requestPath != h.exactMatchPath {
		log.Printf("Requested URL %s did not match exactMatchPath %s for this controller", requestPath, h.exactMatchPath)
		w.WriteHeader(404)
		return
	}

	f, openErr := os.Open(h.filePath)
	if openErr != nil {
		log.Printf("Could not get index.html: %s", openErr)
		w.WriteHeader(500)
		return
	}
	defer f.Close()

	statInfo, statErr := f.Stat()
	if statErr != nil {
		log.Printf("Could not get index.html: %s", statErr)
		w.WriteHeader(500)
		return
	}

	w.Header().Add("Content-Length", strconv.FormatInt(statInfo.Size(), 10))
	w.Header().Add("Content-Type", h.contentType)
	w.WriteHeader(200)

	_, err := io.Copy(w, f)
	if err != nil {
		log.Print("Could not output frontend: ", err)
	}
}
