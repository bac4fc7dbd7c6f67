package localapi

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
)

const maxLoggedBodyBytes = 512

// statusRecorder captures the status and a bounded prefix of the body for
// request logging.
type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
	maxLogBytes  int
	logBody      bytes.Buffer
	truncated    bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	written, err := r.ResponseWriter.Write(p)
	r.bytesWritten += written

	if room := r.maxLogBytes - r.logBody.Len(); room > 0 {
		if written > room {
			r.logBody.Write(p[:room])
			r.truncated = true
		} else {
			r.logBody.Write(p[:written])
		}
	} else if written > 0 {
		r.truncated = true
	}
	return written, err
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
			maxLogBytes:    maxLoggedBodyBytes,
		}

		next.ServeHTTP(recorder, r)

		elapsed := time.Since(started)
		if recorder.statusCode >= http.StatusInternalServerError {
			glog.Errorf("%s %s -> %d (%s) %s", r.Method, r.URL.Path, recorder.statusCode, elapsed, recorder.logBody.String())
			return
		}
		if glog.V(3) {
			suffix := ""
			if recorder.truncated {
				suffix = "..."
			}
			glog.Infof("%s %s -> %d %dB (%s) %s%s", r.Method, r.URL.Path, recorder.statusCode, recorder.bytesWritten, elapsed, recorder.logBody.String(), suffix)
			return
		}
		glog.V(2).Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, recorder.statusCode, elapsed)
	})
}
