package website

import (
	"net/http"

	"github.com/thetakeaway/takeaway/src/tkdata"
)

func Podcasts(c *RequestContext) ResponseData {
	podcasts, err := tkdata.FetchPodcasts(c, c.Deps.Conn)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	return JsonResponse(http.StatusOK, PodcastsToJson(podcasts), c.Perf)
}
