package parser

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/bborbe/httpconn/header"
	"github.com/bborbe/httpconn/response"
)

// ReadRecord parses a response head (status line and header lines)
// from the given reader. Body bytes are left unread. Bytes buffered
// by the bufio.Reader past the head belong to the body and must be
// handed to the stream handle by the caller.
func ReadRecord(reader *bufio.Reader) (*response.Record, error) {
	protoMajor, protoMinor, statusCode, status, err := readStatusLine(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read status line failed")
	}
	hdr, err := readHeaders(reader)
	if err != nil {
		return nil, errors.Wrap(err, "read headers failed")
	}
	return response.NewRecord(protoMajor, protoMinor, statusCode, status, contentLength(hdr), hdr), nil
}

func readStatusLine(reader *bufio.Reader) (protoMajor int, protoMinor int, statusCode int, status string, err error) {
	line, err := readLine(reader)
	if err != nil {
		return 0, 0, 0, "", err
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return 0, 0, 0, "", errors.Errorf("malformed status line %q", line)
	}
	protoMajor, protoMinor, err = parseProto(parts[0])
	if err != nil {
		return 0, 0, 0, "", err
	}
	statusCode, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, "", errors.Errorf("malformed status code %q", parts[1])
	}
	if len(parts) == 3 {
		status = parts[2]
	}
	return protoMajor, protoMinor, statusCode, status, nil
}

func parseProto(proto string) (int, int, error) {
	if !strings.HasPrefix(proto, "HTTP/") {
		return 0, 0, errors.Errorf("malformed protocol %q", proto)
	}
	version := strings.SplitN(proto[len("HTTP/"):], ".", 2)
	if len(version) != 2 {
		return 0, 0, errors.Errorf("malformed protocol %q", proto)
	}
	major, err := strconv.Atoi(version[0])
	if err != nil {
		return 0, 0, errors.Errorf("malformed protocol %q", proto)
	}
	minor, err := strconv.Atoi(version[1])
	if err != nil {
		return 0, 0, errors.Errorf("malformed protocol %q", proto)
	}
	return major, minor, nil
}

func readHeaders(reader *bufio.Reader) (*header.Header, error) {
	hdr := header.New()
	for {
		line, err := readLine(reader)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return hdr, nil
		}
		pos := strings.IndexByte(line, ':')
		if pos <= 0 {
			return nil, errors.Errorf("malformed header line %q", line)
		}
		hdr.Set(strings.TrimSpace(line[:pos]), strings.TrimSpace(line[pos+1:]))
	}
}

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "read line failed")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// contentLength derives the declared body length, -1 when the header
// is absent, invalid or the transfer coding is chunked.
func contentLength(hdr *header.Header) int64 {
	if strings.Contains(strings.ToLower(hdr.Get("Transfer-Encoding")), "chunked") {
		return -1
	}
	value := hdr.Get("Content-Length")
	if value == "" {
		return -1
	}
	result, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || result < 0 {
		return -1
	}
	return result
}
