package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"marketcal/internal/svc"
)

// RegisterHandlers wires the read API onto the rest server.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{
			Method:  http.MethodGet,
			Path:    "/api/ticker/:symbol",
			Handler: TickerHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/api/series/:symbol",
			Handler: SeriesHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/api/orderbook/:symbol",
			Handler: OrderBookHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/api/status/:symbol",
			Handler: StatusHandler(svcCtx),
		},
		{
			Method:  http.MethodGet,
			Path:    "/api/export/:symbol",
			Handler: ExportHandler(svcCtx),
		},
		{
			Method:  http.MethodPost,
			Path:    "/api/refetch/:symbol",
			Handler: RefetchHandler(svcCtx),
		},
	})
}
