package devs3

import (
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/thetakeaway/takeaway/src/logging"
	"github.com/thetakeaway/takeaway/src/website"
)

func init() {
	var addr string
	s3Command := &cobra.Command{
		Use:   "devs3 [storage folder]",
		Short: "Run a local S3 server that stores in the filesystem",
		Long:  "Serves just enough of the S3 API for digest image uploads in development. Point storage.endpoint at it.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetFolder := "./tmp/s3"
			if len(args) > 0 {
				targetFolder = args[0]
			}
			if err := os.MkdirAll(targetFolder, fs.ModePerm); err != nil {
				return err
			}

			logging.Info().Str("addr", addr).Str("folder", targetFolder).Msg("Serving local S3")
			server := &http.Server{
				Addr:              addr,
				Handler:           Handler(targetFolder, logging.GlobalLogger()),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return server.ListenAndServe()
		},
	}
	s3Command.Flags().StringVar(&addr, "addr", ":9000", "Address to listen on")

	website.WebsiteCommand.AddCommand(s3Command)
}

type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	xml.NewEncoder(w).Encode(s3Error{Code: code, Message: msg})
}

// Serves bucket creation plus object PUT, GET and HEAD out of root, with
// path-style addressing. Object keys are flattened into one file per key.
func Handler(root string, logger *zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bucket, key := bucketKey(r)
		logger.Debug().
			Str("method", r.Method).
			Str("bucket", bucket).
			Str("key", key).
			Int64("length", r.ContentLength).
			Msg("local S3 request")

		if bucket == "" || strings.Contains(bucket, "..") {
			writeError(w, http.StatusBadRequest, "InvalidBucketName", "bucket name is missing or invalid")
			return
		}
		bucketDir := filepath.Join(root, bucket)

		switch r.Method {
		case http.MethodPut:
			if key == "" {
				if err := os.MkdirAll(bucketDir, fs.ModePerm); err != nil {
					writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
					return
				}
				w.Header().Set("Location", "/"+bucket)
				return
			}

			if _, err := os.Stat(bucketDir); errors.Is(err, fs.ErrNotExist) {
				writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
				return
			}
			if err := os.WriteFile(filepath.Join(bucketDir, key), body, 0644); err != nil {
				writeError(w, http.StatusInternalServerError, "InternalError", err.Error())
				return
			}
			if ct := r.Header.Get("Content-Type"); ct != "" {
				os.WriteFile(filepath.Join(bucketDir, key+".content-type"), []byte(ct), 0644)
			}
		case http.MethodGet, http.MethodHead:
			fileBytes, err := os.ReadFile(filepath.Join(bucketDir, key))
			if err != nil {
				writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist")
				return
			}
			contentType := http.DetectContentType(fileBytes)
			if ct, err := os.ReadFile(filepath.Join(bucketDir, key+".content-type")); err == nil {
				contentType = string(ct)
			}
			w.Header().Set("Content-Type", contentType)
			if r.Method == http.MethodGet {
				w.Write(fileBytes)
			}
		default:
			writeError(w, http.StatusNotImplemented, "NotImplemented", r.Method+" is not supported")
		}
	})
}

func bucketKey(r *http.Request) (string, string) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	return bucket, strings.ReplaceAll(key, "/", "~")
}
