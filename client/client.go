package client

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/bborbe/httpconn/header"
	"github.com/bborbe/httpconn/parser"
	"github.com/bborbe/httpconn/pool"
	"github.com/bborbe/httpconn/response"
)

// Client sends requests over pooled connections. The returned
// response releases or closes its connection on Dispose.
type Client interface {
	Get(ctx context.Context, rawUrl string) (response.Response, error)
	Do(ctx context.Context, method string, rawUrl string, hdr *header.Header, keepAlive bool) (response.Response, error)
}

func NewClient(
	connectionPool pool.Pool,
) Client {
	return &client{
		pool: connectionPool,
	}
}

type client struct {
	pool pool.Pool
}

func (c *client) Get(ctx context.Context, rawUrl string) (response.Response, error) {
	return c.Do(ctx, "GET", rawUrl, nil, true)
}

func (c *client) Do(ctx context.Context, method string, rawUrl string, hdr *header.Header, keepAlive bool) (response.Response, error) {
	parsedUrl, err := url.Parse(rawUrl)
	if err != nil {
		return nil, errors.Wrap(err, "parse url failed")
	}
	if hdr == nil {
		hdr = header.New()
	}
	dest, err := destination(parsedUrl)
	if err != nil {
		return nil, err
	}
	handle, err := c.connect(ctx, parsedUrl.Scheme, dest)
	if err != nil {
		return nil, err
	}
	c.pool.Register(handle)
	if err := writeRequest(handle, method, parsedUrl, hdr, keepAlive); err != nil {
		c.pool.RemoveIfPresent(handle)
		_ = handle.Close()
		return nil, errors.Wrap(err, "write request failed")
	}
	bufReader := bufio.NewReader(handle)
	record, err := parser.ReadRecord(bufReader)
	if err != nil {
		c.pool.RemoveIfPresent(handle)
		_ = handle.Close()
		return nil, errors.Wrap(err, "read response failed")
	}
	// bytes read past the head belong to the body
	if n := bufReader.Buffered(); n > 0 {
		buffered, err := bufReader.Peek(n)
		if err != nil {
			c.pool.RemoveIfPresent(handle)
			_ = handle.Close()
			return nil, errors.Wrap(err, "peek buffered bytes failed")
		}
		window := make([]byte, n)
		copy(window, buffered)
		handle.SetWindow(window)
	}
	return response.NewResponse(record, handle, c.pool, keepAlive), nil
}

func (c *client) connect(ctx context.Context, scheme string, destination string) (*response.StreamHandle, error) {
	for {
		idle, ok := c.pool.AcquireIdle(destination)
		if !ok {
			break
		}
		handle, ok := idle.(*response.StreamHandle)
		if !ok {
			_ = idle.Close()
			continue
		}
		if err := handle.Reset(); err != nil {
			_ = handle.Close()
			continue
		}
		glog.V(2).Infof("reuse connection to %s", destination)
		return handle, nil
	}
	conn, err := dial(ctx, scheme, destination)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s failed", destination)
	}
	glog.V(2).Infof("new connection to %s", destination)
	return response.NewStreamHandle(conn, destination), nil
}

func dial(ctx context.Context, scheme string, destination string) (net.Conn, error) {
	dialer := &net.Dialer{}
	if scheme == "https" {
		serverName, _, err := net.SplitHostPort(destination)
		if err != nil {
			serverName = destination
		}
		return tls.DialWithDialer(dialer, "tcp", destination, &tls.Config{
			ServerName: serverName,
		})
	}
	return dialer.DialContext(ctx, "tcp", destination)
}

func destination(parsedUrl *url.URL) (string, error) {
	host := parsedUrl.Hostname()
	if host == "" {
		return "", errors.Errorf("url %s has no host", parsedUrl)
	}
	port := parsedUrl.Port()
	if port == "" {
		switch parsedUrl.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return "", errors.Errorf("unsupported scheme %q", parsedUrl.Scheme)
		}
	}
	return net.JoinHostPort(host, port), nil
}

func writeRequest(writer io.Writer, method string, parsedUrl *url.URL, hdr *header.Header, keepAlive bool) error {
	path := parsedUrl.RequestURI()
	if path == "" {
		path = "/"
	}
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%s %s HTTP/1.1\r\n", method, path)
	fmt.Fprintf(buf, "Host: %s\r\n", parsedUrl.Host)
	if keepAlive {
		fmt.Fprintf(buf, "Connection: keep-alive\r\n")
	} else {
		fmt.Fprintf(buf, "Connection: close\r\n")
	}
	for _, name := range hdr.Names() {
		if strings.EqualFold(name, "Host") || strings.EqualFold(name, "Connection") {
			continue
		}
		fmt.Fprintf(buf, "%s: %s\r\n", name, hdr.Get(name))
	}
	fmt.Fprintf(buf, "\r\n")
	_, err := writer.Write(buf.Bytes())
	return err
}
