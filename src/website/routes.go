package website

import (
	"net/http"

	"github.com/thetakeaway/takeaway/src/tkurl"
)

func NewWebsiteRoutes(deps *Deps) http.Handler {
	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			func(h Handler) Handler {
				return func(c *RequestContext) ResponseData {
					c.Deps = deps
					return h(c)
				}
			},
			requestLogger,
			trackRequestPerf,
			logContextErrorsMiddleware,
			corsMiddleware,
			panicCatcherMiddleware,
		},
	}
	admin := routes.WithMiddleware(adminsOnly)

	routes.OPTIONS(tkurl.RegexCatchAll, CORSPreflight)

	routes.GET(tkurl.RegexHealth, Health)

	routes.GET(tkurl.RegexTranscriptProgress, TranscriptProgress)
	routes.GET(tkurl.RegexTranscriptProgressWebSocket, TranscriptProgressWebSocket)
	admin.POST(tkurl.RegexProcessTranscript, ProcessTranscript)

	routes.GET(tkurl.RegexDigests, Digests)
	admin.POST(tkurl.RegexDigests, AdminCreateDigest)
	routes.GET(tkurl.RegexDigestFilters, DigestFilters)
	routes.GET(tkurl.RegexDigest, DigestDetail)
	admin.PATCH(tkurl.RegexDigest, AdminUpdateDigest)
	admin.DELETE(tkurl.RegexDigest, AdminDeleteDigest)
	routes.GET(tkurl.RegexDigestExport, DigestExport)
	admin.POST(tkurl.RegexDigestImage, AdminUploadDigestImage)

	admin.POST(tkurl.RegexIdeas, AdminCreateIdea)

	routes.GET(tkurl.RegexCategories, Categories)
	routes.GET(tkurl.RegexCategory, CategoryDetail)
	routes.GET(tkurl.RegexPodcasts, Podcasts)

	routes.AnyMethod(tkurl.RegexCatchAll, FourOhFour)

	return router
}

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func Health(c *RequestContext) ResponseData {
	return JsonResponse(http.StatusOK, HealthResponse{
		Status:  "ok",
		Message: "The Takeaway API is running",
	}, c.Perf)
}
