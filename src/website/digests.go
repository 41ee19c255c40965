package website

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thetakeaway/takeaway/src/assets"
	"github.com/thetakeaway/takeaway/src/db"
	"github.com/thetakeaway/takeaway/src/export"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/tkdata"
)

const digestsPerPage = 20

type DigestsResponse struct {
	Digests    []Digest `json:"digests"`
	Count      int      `json:"count"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
}

func parseUUIDs(values []string, what string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := uuid.Parse(part)
			if err != nil {
				return nil, NewSafeError(err, "Invalid %s id: %s", what, part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func digestsQueryFromUrl(query url.Values) (tkdata.DigestsQuery, error) {
	q := tkdata.DigestsQuery{
		Search:       strings.TrimSpace(query.Get("q")),
		FeaturedOnly: query.Get("featured") == "true",
		Sort:         tkdata.DigestSort(query.Get("sort")),
	}
	if q.Sort != "" && !q.Sort.Valid() {
		return q, NewSafeError(nil, "Invalid sort: %s", q.Sort)
	}

	var err error
	if q.CategoryIDs, err = parseUUIDs(query["category"], "category"); err != nil {
		return q, err
	}
	if q.PodcastIDs, err = parseUUIDs(query["podcast"], "podcast"); err != nil {
		return q, err
	}
	return q, nil
}

func Digests(c *RequestContext) ResponseData {
	query := c.Req.URL.Query()
	q, err := digestsQueryFromUrl(query)
	if err != nil {
		return c.ErrorResponse(http.StatusBadRequest, err)
	}

	count, err := tkdata.CountDigests(c, c.Deps.Conn, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}

	page, totalPages, ok := getPageInfo(query.Get("page"), count, digestsPerPage)
	if !ok {
		return c.ErrorResponse(http.StatusBadRequest, NewSafeError(nil, "Invalid page"))
	}
	q.Limit = digestsPerPage
	q.Offset = (page - 1) * digestsPerPage

	digests, err := tkdata.FetchDigests(c, c.Deps.Conn, q)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}

	res := DigestsResponse{
		Digests:    make([]Digest, 0, len(digests)),
		Count:      count,
		Page:       page,
		TotalPages: totalPages,
	}
	for _, d := range digests {
		res.Digests = append(res.Digests, DigestWithIdeasToJson(d))
	}
	return JsonResponse(http.StatusOK, res, c.Perf)
}

type DigestFiltersResponse struct {
	Categories []*tkdata.FilterOption `json:"categories"`
	Podcasts   []*tkdata.FilterOption `json:"podcasts"`
}

func DigestFilters(c *RequestContext) ResponseData {
	categories, podcasts, err := tkdata.FetchFilterOptions(c, c.Deps.Conn)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	if categories == nil {
		categories = []*tkdata.FilterOption{}
	}
	if podcasts == nil {
		podcasts = []*tkdata.FilterOption{}
	}
	return JsonResponse(http.StatusOK, DigestFiltersResponse{
		Categories: categories,
		Podcasts:   podcasts,
	}, c.Perf)
}

var errDigestNotFound = NewSafeError(db.NotFound, "Digest not found")

// Fetches the digest named by the id path param, or returns the response to
// send if that fails.
func fetchDigestParam(c *RequestContext) (*tkdata.DigestWithIdeas, *ResponseData) {
	id, ok := c.UUIDParam("id")
	if !ok {
		res := c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
		return nil, &res
	}
	digest, err := tkdata.FetchDigest(c, c.Deps.Conn, id)
	if err != nil {
		var res ResponseData
		if errors.Is(err, db.NotFound) {
			res = c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
		} else {
			res = c.ErrorResponse(http.StatusInternalServerError, err)
		}
		return nil, &res
	}
	return digest, nil
}

func DigestDetail(c *RequestContext) ResponseData {
	digest, errRes := fetchDigestParam(c)
	if errRes != nil {
		return *errRes
	}
	return JsonResponse(http.StatusOK, DigestWithIdeasToJson(digest), c.Perf)
}

func DigestExport(c *RequestContext) ResponseData {
	digest, errRes := fetchDigestParam(c)
	if errRes != nil {
		return *errRes
	}

	c.Perf.StartBlock("TEMPLATE", "Render export")
	markdown, err := export.Markdown(digest)
	c.Perf.EndBlock()
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to export digest"))
	}

	var res ResponseData
	res.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	res.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(&digest.Digest)))
	res.Write([]byte(markdown))
	return res
}

// Accepts full RFC 3339 timestamps and plain dates, which is what a date
// input on a form sends.
type jsonDate time.Time

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = jsonDate(t)
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

func (d *jsonDate) Time() *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}

type DigestRequest struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	ImageUrl      *string   `json:"image_url"`
	PublishedDate *jsonDate `json:"published_date"`
	Featured      *bool     `json:"featured"`
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func AdminCreateDigest(c *RequestContext) ResponseData {
	var req DigestRequest
	if err := c.ReadJson(&req); err != nil {
		return c.ErrorResponse(http.StatusBadRequest, err)
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return c.ErrorResponse(http.StatusBadRequest, NewSafeError(nil, "Title is required"))
	}

	input := tkdata.DigestInput{
		Title:         strings.TrimSpace(*req.Title),
		Description:   optionalString(req.Description),
		ImageUrl:      optionalString(req.ImageUrl),
		PublishedDate: req.PublishedDate.Time(),
	}
	if req.Featured != nil {
		input.Featured = *req.Featured
	}

	digest, err := tkdata.CreateDigest(c, c.Deps.Conn, input)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, NewSafeError(err, "Failed to create digest"))
	}
	c.Logger.Info().Stringer("digestId", digest.ID).Msg("created digest")
	return JsonResponse(http.StatusCreated, DigestToJson(digest), c.Perf)
}

func AdminUpdateDigest(c *RequestContext) ResponseData {
	id, ok := c.UUIDParam("id")
	if !ok {
		return c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
	}

	var req DigestRequest
	if err := c.ReadJson(&req); err != nil {
		return c.ErrorResponse(http.StatusBadRequest, err)
	}

	update := tkdata.DigestUpdate{
		Description:   req.Description,
		ImageUrl:      req.ImageUrl,
		PublishedDate: req.PublishedDate.Time(),
		Featured:      req.Featured,
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return c.ErrorResponse(http.StatusBadRequest, NewSafeError(nil, "Title cannot be empty"))
		}
		update.Title = &title
	}
	if update.Empty() {
		return c.ErrorResponse(http.StatusBadRequest, NewSafeError(nil, "Nothing to update"))
	}

	digest, err := tkdata.UpdateDigest(c, c.Deps.Conn, id, update)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
		}
		return c.ErrorResponse(http.StatusInternalServerError, NewSafeError(err, "Failed to update digest"))
	}
	return JsonResponse(http.StatusOK, DigestToJson(digest), c.Perf)
}

func AdminDeleteDigest(c *RequestContext) ResponseData {
	id, ok := c.UUIDParam("id")
	if !ok {
		return c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
	}

	err := tkdata.DeleteDigest(c, c.Deps.Conn, id)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return c.ErrorResponse(http.StatusNotFound, errDigestNotFound)
		}
		return c.ErrorResponse(http.StatusInternalServerError, NewSafeError(err, "Failed to delete digest"))
	}
	c.Logger.Info().Stringer("digestId", id).Msg("deleted digest")
	return ResponseData{StatusCode: http.StatusNoContent}
}

type DigestImageResponse struct {
	Digest Digest `json:"digest"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

const imageFormField = "image"

// Reads the uploaded image from a multipart form. Content over the size limit
// is rejected without reading the rest of it.
func readUploadedImage(c *RequestContext) (filename string, content []byte, err error) {
	c.Req.Body = http.MaxBytesReader(c.Res, c.Req.Body, assets.MaxImageBytes+1024*1024)
	if err := c.Req.ParseMultipartForm(assets.MaxImageBytes); err != nil {
		return "", nil, NewSafeError(err, "Request must be a multipart form under %dMB", assets.MaxImageBytes/1024/1024)
	}
	file, header, err := c.Req.FormFile(imageFormField)
	if err != nil {
		return "", nil, NewSafeError(err, "Missing %q file", imageFormField)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, assets.MaxImageBytes+1)); err != nil {
		return "", nil, oops.New(err, "failed to read uploaded image")
	}
	return header.Filename, buf.Bytes(), nil
}

func AdminUploadDigestImage(c *RequestContext) ResponseData {
	if c.Deps.Images == nil {
		return c.ErrorResponse(http.StatusServiceUnavailable, NewSafeError(assets.ErrStorageNotConfigured, "Image storage is not configured"))
	}

	digest, errRes := fetchDigestParam(c)
	if errRes != nil {
		return *errRes
	}

	filename, content, err := readUploadedImage(c)
	if err != nil {
		return c.ErrorResponse(http.StatusBadRequest, err)
	}

	c.Perf.StartBlock("S3", "Upload digest image")
	uploaded, err := c.Deps.Images.UploadDigestImage(c, digest.Digest.ID, filename, content)
	c.Perf.EndBlock()
	if err != nil {
		var invalid *assets.InvalidImageError
		if errors.As(err, &invalid) {
			return c.ErrorResponse(http.StatusBadRequest, &SafeError{Wrapped: err, Msg: "Invalid image", Details: invalid.Reason})
		}
		return c.ErrorResponse(http.StatusInternalServerError, NewSafeError(err, "Failed to upload image"))
	}

	updated, err := tkdata.UpdateDigest(c, c.Deps.Conn, digest.Digest.ID, tkdata.DigestUpdate{ImageUrl: &uploaded.Url})
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, NewSafeError(err, "Failed to update digest"))
	}

	c.Logger.Info().
		Stringer("digestId", updated.ID).
		Str("key", uploaded.Key).
		Msg("uploaded digest image")
	return JsonResponse(http.StatusOK, DigestImageResponse{
		Digest: DigestToJson(updated),
		Width:  uploaded.Width,
		Height: uploaded.Height,
	}, c.Perf)
}
