package utils

import (
	"github.com/valyala/fasthttp"
)

type errorBody struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func WriteJSON(ctx *fasthttp.RequestCtx, status int, payload interface{}) {
	body, err := Marshal(payload)
	if err != nil {
		WriteError(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

// WriteError renders {"success":false,"error":{"message":...}} and echoes the request id.
func WriteError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	if requestID := ctx.Request.Header.Peek("X-Request-ID"); len(requestID) > 0 {
		ctx.Response.Header.SetBytesV("X-Request-ID", requestID)
	}

	body, err := Marshal(errorResponse{Error: errorBody{Message: message}})
	if err != nil {
		ctx.SetBodyString(`{"success":false,"error":{"message":"Internal Server Error"}}`)
		return
	}
	ctx.SetBody(body)
}
