package main

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/h2non/filetype"
)

type StaticFilesHandler struct {
	basePath string
	uriTrim  int
}

/**
removes up to `uriTrim` segments from the URI and returns the result.
*/
func (h StaticFilesHandler) getTrimmedUriPath(uri string) (string, error) {
	if h.uriTrim == 0 {
		return uri, nil
	}
	pathParts := strings.Split(uri, "/")
	if len(pathParts) <= h.uriTrim {
		return "", errors.New("not enough parts in URL to trim")
	}
	return strings.Join(pathParts[h.uriTrim:], "/"), nil
}

/**
text assets (js, css, svg) have no magic numbers, so those are typed by extension;
binary ones are sniffed
*/
func mimeTypeFor(fileName string) string {
	if byExtension := mime.TypeByExtension(filepath.Ext(fileName)); byExtension != "" {
		return byExtension
	}
	fileTypeInfo, ftErr := filetype.MatchFile(fileName)
	if ftErr != nil || fileTypeInfo == filetype.Unknown {
		return "application/octet-stream"
	}
	return fileTypeInfo.MIME.Value
}

func (h StaticFilesHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	trimmedUriPath, trimErr := h.getTrimmedUriPath(req.URL.Path)
	if trimErr != nil {
		log.Printf("Could not trim URL %s: %s", req.URL.Path, trimErr)
		w.WriteHeader(404)
		return
	}

	//path.Clean on a rooted path cannot climb above the root
	cleaned := path.Clean("/" + trimmedUriPath)
	fileName := filepath.Join(h.basePath, filepath.FromSlash(cleaned))

	fileInfo, err := os.Stat(fileName)
	if err != nil || fileInfo.IsDir() {
		log.Printf("Could not serve '%s': %v", fileName, err)
		w.WriteHeader(404)
		return
	}

	f, openErr := os.Open(fileName)
	if openErr != nil {
		log.Printf("Could not get %s: %s", fileName, openErr)
		w.WriteHeader(500)
		return
	}
	defer f.Close()

	w.Header().Add("Content-Length", strconv.FormatInt(fileInfo.Size(), 10))
	w.Header().Add("Content-Type", mimeTypeFor(fileName))
	w.WriteHeader(200)

	_, copyErr := io.Copy(w, f)
	if copyErr != nil {
		log.Printf("Could not (fully) output %s: %s", fileName, copyErr)
	}
}
