package server

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-positioning/api"
	polygon "github.com/dgnsrekt/options-positioning/internal/api"
	"github.com/dgnsrekt/options-positioning/internal/ws"
)

// LoadSwagger parses the embedded OpenAPI document.
func LoadSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromData(api.OpenAPISpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	return swagger, nil
}

// NewRouter builds the HTTP API. hub may be nil when streaming is disabled.
func NewRouter(server *Server, hub *ws.Hub, logger *zap.Logger) (http.Handler, error) {
	// Load OpenAPI spec for validation
	swagger, err := LoadSwagger()
	if err != nil {
		return nil, err
	}
	swagger.Servers = nil // Allow any host
	server.hub = hub

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	// Non-validated routes
	r.Get("/openapi.yaml", openapiHandler)
	r.Get("/docs", swaggerUIHandler)
	if hub != nil {
		r.Get("/ws/analytics", hub.HandleAnalyticsWS)
	}

	// API routes with OpenAPI validation
	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(oapimiddleware.OapiRequestValidatorWithOptions(swagger, &oapimiddleware.Options{
			ErrorHandler: validationErrorHandler,
		}))

		apiRouter.Get("/health", server.getHealth)

		apiRouter.Post("/gex/analyze", server.analyzeGEX)
		apiRouter.Get("/gex/{ticker}", server.getGEX)
		apiRouter.Get("/gex/{ticker}/summary", server.getGEXSummary)

		apiRouter.Get("/max-pain/{symbol}", server.getMaxPain)
		apiRouter.Get("/max-pain/{symbol}/bias", server.getMaxPainBias)
		apiRouter.Get("/max-pain/{symbol}/strikes", server.getMaxPainStrikes)

		apiRouter.Get("/indicators/flow/{symbol}", server.getFlow)
		apiRouter.Get("/indicators/flow/{symbol}/pcr", server.getFlowPCR)
		apiRouter.Get("/indicators/flow/{symbol}/premium", server.getFlowPremium)
		apiRouter.Get("/indicators/flow/{symbol}/unusual", server.getFlowUnusual)

		apiRouter.Post("/greeks/portfolio", server.postPortfolioGreeks)
		apiRouter.Get("/greeks/{symbol}", server.getATMGreeks)
		apiRouter.Get("/greeks/{symbol}/{greek}", server.getATMGreek)

		apiRouter.Get("/decision/{symbol}", server.getDecision)

		apiRouter.Post("/admin/reload", server.reloadData)
	})

	return r, nil
}

// validationErrorHandler renders validator rejections in the API's error shape.
func validationErrorHandler(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("requestID", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", maskQueryKey(r.URL.RawQuery)),
			)
			next.ServeHTTP(w, r)
		})
	}
}

// maskQueryKey masks the "apiKey" parameter in a query string
func maskQueryKey(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	if key := values.Get("apiKey"); key != "" {
		values.Set("apiKey", polygon.MaskKey(key))
	}
	return values.Encode()
}

func openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(api.OpenAPISpec)
}

func swaggerUIHandler(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Options Positioning API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.3/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "/openapi.yaml",
                dom_id: '#swagger-ui',
            });
        };
    </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}
