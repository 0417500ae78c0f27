package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/bborbe/httpconn/client"
	"github.com/bborbe/httpconn/header"
	"github.com/bborbe/httpconn/pool"
	"github.com/bborbe/httpconn/response"

	"github.com/pkg/errors"

	"github.com/bborbe/argument"
	"github.com/elazarl/goproxy"
	"github.com/getsentry/raven-go"
	"github.com/golang/glog"
)

func main() {
	defer glog.Flush()
	glog.CopyStandardLogTo("info")
	runtime.GOMAXPROCS(runtime.NumCPU())
	_ = flag.Set("logtostderr", "true")

	app := &application{}
	if err := argument.Parse(app); err != nil {
		glog.Exitf("parse app failed: %v", err)
	}

	glog.V(0).Infof("application started")
	if err := app.run(contextWithSig(context.Background())); err != nil {
		raven.CaptureErrorAndWait(err, map[string]string{})
		glog.Exitf("application failed: %+v", err)
	}
	glog.V(0).Infof("application finished")
	os.Exit(0)
}

func contextWithSig(ctx context.Context) context.Context {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()

		signalCh := make(chan os.Signal, 1)
		signal.Notify(signalCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-signalCh:
		case <-ctx.Done():
		}
	}()

	return ctxWithCancel
}

type application struct {
	Listen string `ARG:"listen" DEFAULT:":3128" USAGE:"address to listen on"`
	Match  string `ARG:"match" DEFAULT:".*" USAGE:"regexp of hosts fetched via pooled connections"`
}

func (a *application) run(ctx context.Context) error {
	connectionPool := pool.NewPool()
	httpClient := client.NewClient(connectionPool)

	router := mux.NewRouter()
	router.Path("/").HandlerFunc(func(resp http.ResponseWriter, req *http.Request) {
		resp.Header().Add("Content-Type", "text/html")
		resp.WriteHeader(http.StatusOK)
		fmt.Fprintf(resp, `<html><body>`)
		fmt.Fprintf(resp, `<h1>Connections</h1>`)

		fmt.Fprintf(resp, `<table><tr><td>Destination</td><td>Idle</td></tr>`)
		for destination, count := range connectionPool.IdleConnections() {
			fmt.Fprintf(resp, `<tr><td>%s</td><td>%d</td></tr>`, destination, count)
		}
		fmt.Fprintf(resp, `</table>`)
		fmt.Fprintf(resp, `<p>Total: %d</p>`, connectionPool.Len())

		fmt.Fprintf(resp, `</body></html>`)
	})

	hostMatch, err := regexp.Compile(a.Match)
	if err != nil {
		return errors.Wrap(err, "compile match regexp failed")
	}

	proxy := goproxy.NewProxyHttpServer()
	proxy.NonproxyHandler = router

	proxy.OnRequest(goproxy.ReqHostMatches(hostMatch)).DoFunc(
		func(req *http.Request, proxyCtx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
			if req.Method != http.MethodGet {
				return req, nil
			}
			resp, err := httpClient.Do(ctx, req.Method, req.URL.String(), header.NewFromHTTP(req.Header), !req.Close)
			if err != nil {
				glog.Warningf("request failed: %v", err)
				return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusInternalServerError, "Failed")
			}
			httpResponse, err := convertResponse(req, resp)
			if err != nil {
				resp.Dispose()
				glog.Warningf("convert response failed: %v", err)
				return req, goproxy.NewResponse(req, goproxy.ContentTypeText, http.StatusInternalServerError, "Failed")
			}
			return req, httpResponse
		})

	proxy.OnRequest().DoFunc(func(req *http.Request, proxyCtx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		glog.V(0).Infof("host: %s", req.Host)
		return req, nil
	})

	server := &http.Server{
		Addr:    a.Listen,
		Handler: proxy,
	}
	go func() {
		select {
		case <-ctx.Done():
			if err := server.Shutdown(ctx); err != nil {
				glog.Warningf("shutdown failed: %v", err)
			}
			if err := connectionPool.CloseIdle(); err != nil {
				glog.Warningf("close idle connections failed: %v", err)
			}
		}
	}()
	err = server.ListenAndServe()
	if err == http.ErrServerClosed {
		glog.V(0).Info(err)
		return nil
	}
	return errors.Wrap(err, "httpServer failed")
}

// convertResponse builds a http.Response for goproxy. Disposing of
// the pooled connection happens when the body is closed.
func convertResponse(req *http.Request, resp response.Response) (*http.Response, error) {
	body, err := resp.Body()
	if err != nil {
		return nil, errors.Wrap(err, "get body failed")
	}
	record := resp.Record()
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", record.StatusCode, record.Status),
		StatusCode:    record.StatusCode,
		Proto:         fmt.Sprintf("HTTP/%d.%d", record.ProtoMajor, record.ProtoMinor),
		ProtoMajor:    record.ProtoMajor,
		ProtoMinor:    record.ProtoMinor,
		Header:        record.Header().ToHTTP(),
		Body:          &disposeOnClose{reader: body, response: resp},
		ContentLength: record.ContentLength,
		Request:       req,
	}, nil
}

type disposeOnClose struct {
	reader   io.ReadCloser
	response response.Response
}

func (d *disposeOnClose) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

func (d *disposeOnClose) Close() error {
	// drain so the connection is clean before it goes back to the pool
	_, _ = io.Copy(ioutil.Discard, d.reader)
	err := d.reader.Close()
	d.response.Dispose()
	return err
}
