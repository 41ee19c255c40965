package website

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/thetakeaway/takeaway/src/auth"
	"github.com/thetakeaway/takeaway/src/config"
	"github.com/thetakeaway/takeaway/src/oops"
	"github.com/thetakeaway/takeaway/src/perf"
)

func panicCatcherMiddleware(h Handler) Handler {
	return func(c *RequestContext) (res ResponseData) {
		defer func() {
			if recovered := recover(); recovered != nil {
				maybeError, ok := recovered.(error)
				var err error
				if ok {
					err = oops.New(maybeError, "recovered from panic")
				} else {
					err = oops.New(nil, "Recovered from panic with value: %v", recovered)
				}
				res = c.ErrorResponse(http.StatusInternalServerError, err)
			}
		}()

		return h(c)
	}
}

func trackRequestPerf(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		c.Perf = perf.MakeNewRequestPerf(c.Route, c.Req.Method, c.Req.URL.Path)
		c.attachToContext()
		defer func() {
			c.Perf.EndRequest()
			log := c.Logger.Debug()
			blockStack := make([]time.Time, 0)
			for i, block := range c.Perf.Blocks {
				for len(blockStack) > 0 && block.End.After(blockStack[len(blockStack)-1]) {
					blockStack = blockStack[:len(blockStack)-1]
				}
				log.Str(fmt.Sprintf("[%4.d] At %9.2fms", i, c.Perf.MsFromStart(&block)), fmt.Sprintf("%*.s[%s] %s (%.4fms)", len(blockStack)*2, "", block.Category, block.Description, block.DurationMs()))
				blockStack = append(blockStack, block.End)
			}
			log.Msg(fmt.Sprintf("Served [%s] %s in %.4fms", c.Perf.Method, c.Perf.Path, float64(c.Perf.End.Sub(c.Perf.Start).Nanoseconds())/1000/1000))
		}()

		return h(c)
	}
}

// Tags the request logger with the route and client address so every log
// line from a request can be found together.
func requestLogger(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		ctx := c.Logger.With().Str("route", c.Route).Str("method", c.Req.Method)
		if ip := c.GetIP(); ip != nil {
			ctx = ctx.Str("ip", ip.Addr().String())
		}
		logger := ctx.Logger()
		c.Logger = &logger
		return h(c)
	}
}

var ErrAdminNotConfigured = NewSafeError(nil, "Admin access is not configured")

/*
Admin endpoints take "Authorization: Bearer <token>", checked against the
argon2 hash in config. With no hash configured, dev servers let everyone in
and every other environment lets nobody in.
*/
func adminsOnly(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		hashed := c.Deps.AdminToken
		if hashed == nil {
			if c.Deps.Env == config.Dev {
				c.IsAdmin = true
				return h(c)
			}
			return c.ErrorResponse(http.StatusUnauthorized, ErrAdminNotConfigured)
		}

		token, err := auth.BearerToken(c.Req.Header.Get("Authorization"))
		if err != nil {
			return c.ErrorResponse(http.StatusUnauthorized, NewSafeError(err, "Unauthorized"))
		}

		c.Perf.StartBlock("AUTH", "Check admin token")
		ok, err := auth.CheckToken(token, *hashed)
		c.Perf.EndBlock()
		if err != nil {
			return c.ErrorResponse(http.StatusInternalServerError, oops.New(err, "failed to check admin token"))
		}
		if !ok {
			c.Logger.Warn().Msg("rejected bad admin token")
			return c.ErrorResponse(http.StatusUnauthorized, NewSafeError(nil, "Unauthorized"))
		}

		c.IsAdmin = true
		return h(c)
	}
}

const (
	corsAllowMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type"
)

func addCORSHeaders(c *RequestContext, header http.Header) {
	origin := c.Req.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := c.Deps.AllowedOrigins
	if slices.Contains(allowed, "*") {
		header.Set("Access-Control-Allow-Origin", "*")
		return
	}
	for _, o := range allowed {
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			header.Set("Access-Control-Allow-Origin", origin)
			header.Add("Vary", "Origin")
			return
		}
	}
}

func corsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		if !res.hijacked {
			addCORSHeaders(c, res.Header())
		}
		return res
	}
}

func CORSPreflight(c *RequestContext) ResponseData {
	var res ResponseData
	res.StatusCode = http.StatusNoContent
	addCORSHeaders(c, res.Header())
	res.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
	res.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
	res.Header().Set("Access-Control-Max-Age", "600")
	return res
}

func logContextErrors(c *RequestContext, status int, errs ...error) {
	for _, err := range errs {
		event := c.Logger.Error()
		if status < http.StatusInternalServerError {
			event = c.Logger.Warn()
		}
		event.Timestamp().Stack().Str("Requested", c.Req.URL.String()).Int("status", status).Err(err).Msg("error occurred during request")
	}
}

func logContextErrorsMiddleware(h Handler) Handler {
	return func(c *RequestContext) ResponseData {
		res := h(c)
		logContextErrors(c, res.StatusCode, res.Errors...)
		return res
	}
}
