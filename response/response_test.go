package response_test

import (
	"io/ioutil"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/bborbe/httpconn/header"
	"github.com/bborbe/httpconn/pool"
	"github.com/bborbe/httpconn/response"
)

var _ = Describe("Response", func() {
	var conn *testConn
	var handle *response.StreamHandle
	var connectionPool *testPool
	var hdr *header.Header

	BeforeEach(func() {
		conn = newTestConn("")
		handle = response.NewStreamHandle(conn, "example.com:80")
		connectionPool = &testPool{}
		hdr = header.New()
	})

	newResponse := func(keepAlive bool) response.Response {
		record := response.NewRecord(1, 1, 200, "OK", -1, hdr)
		return response.NewResponse(record, handle, connectionPool, keepAlive)
	}

	Describe("Dispose", func() {
		It("closes when keep-alive is not wanted", func() {
			resp := newResponse(false)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateClosed))
			Expect(conn.closed).To(BeTrue())
			Expect(connectionPool.addIdle).To(BeEmpty())
		})
		It("closes when keep-alive is not wanted even if server offers it", func() {
			hdr.Set("Connection", "keep-alive")
			resp := newResponse(false)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateClosed))
			Expect(connectionPool.addIdle).To(BeEmpty())
		})
		It("releases when keep-alive is wanted and no Connection header present", func() {
			resp := newResponse(true)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateReleased))
			Expect(conn.closed).To(BeFalse())
			Expect(connectionPool.removeCalls).To(HaveLen(1))
			Expect(connectionPool.addIdle).To(Equal([]pool.Handle{handle}))
		})
		It("removes from pool before adding idle", func() {
			resp := newResponse(true)
			resp.Dispose()
			Expect(connectionPool.removeCalls).To(Equal([]pool.Handle{handle}))
			Expect(connectionPool.addIdle).To(Equal([]pool.Handle{handle}))
		})
		It("closes on Connection close", func() {
			hdr.Set("Connection", "close")
			resp := newResponse(true)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateClosed))
			Expect(connectionPool.addIdle).To(BeEmpty())
		})
		It("closes on Connection close regardless of case", func() {
			for _, value := range []string{"Close", "CLOSE", "cLoSe"} {
				conn = newTestConn("")
				handle = response.NewStreamHandle(conn, "example.com:80")
				connectionPool = &testPool{}
				hdr = header.New()
				hdr.Set("Connection", value)
				resp := newResponse(true)
				resp.Dispose()
				Expect(handle.State()).To(Equal(response.HandleStateClosed))
				Expect(connectionPool.addIdle).To(BeEmpty())
			}
		})
		It("releases on other Connection values", func() {
			hdr.Set("Connection", "keep-alive")
			resp := newResponse(true)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateReleased))
		})
		It("is idempotent", func() {
			resp := newResponse(true)
			resp.Dispose()
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateReleased))
			Expect(connectionPool.removeCalls).To(HaveLen(1))
			Expect(connectionPool.addIdle).To(HaveLen(1))
		})
		It("is idempotent on close path", func() {
			resp := newResponse(false)
			resp.Dispose()
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateClosed))
			Expect(connectionPool.removeCalls).To(HaveLen(1))
		})
		It("works if the body was never read", func() {
			resp := newResponse(true)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateReleased))
		})
		It("works after the body was claimed", func() {
			resp := newResponse(true)
			_, err := resp.Body()
			Expect(err).To(BeNil())
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateReleased))
		})
		It("does nothing on an already closed handle", func() {
			resp := newResponse(true)
			Expect(handle.Close()).To(BeNil())
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateClosed))
			Expect(connectionPool.removeCalls).To(BeEmpty())
			Expect(connectionPool.addIdle).To(BeEmpty())
		})
		It("leaves a released handle resettable for reuse", func() {
			resp := newResponse(true)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateReleased))
			Expect(handle.Reset()).To(BeNil())
			Expect(handle.State()).To(Equal(response.HandleStateOpen))
		})
		It("swallows teardown failures", func() {
			conn.closeErr = errors.New("banana")
			resp := newResponse(false)
			resp.Dispose()
			Expect(handle.State()).To(Equal(response.HandleStateClosed))
		})
	})

	Describe("Body", func() {
		It("reads window bytes before connection bytes", func() {
			conn = newTestConn(" world")
			handle = response.NewStreamHandle(conn, "example.com:80")
			handle.SetWindow([]byte("hello"))
			record := response.NewRecord(1, 1, 200, "OK", 11, header.New())
			resp := response.NewResponse(record, handle, connectionPool, true)
			body, err := resp.Body()
			Expect(err).To(BeNil())
			content, err := ioutil.ReadAll(body)
			Expect(err).To(BeNil())
			Expect(string(content)).To(Equal("hello world"))
		})
		It("stops at the declared content length", func() {
			conn = newTestConn("hello worldEXTRA")
			handle = response.NewStreamHandle(conn, "example.com:80")
			record := response.NewRecord(1, 1, 200, "OK", 11, header.New())
			resp := response.NewResponse(record, handle, connectionPool, true)
			body, err := resp.Body()
			Expect(err).To(BeNil())
			content, err := ioutil.ReadAll(body)
			Expect(err).To(BeNil())
			Expect(string(content)).To(Equal("hello world"))
		})
		It("transitions the handle to cloned", func() {
			resp := newResponse(true)
			_, err := resp.Body()
			Expect(err).To(BeNil())
			Expect(handle.State()).To(Equal(response.HandleStateCloned))
		})
		It("fails on second claim while first reader stays valid", func() {
			conn = newTestConn("hello")
			handle = response.NewStreamHandle(conn, "example.com:80")
			record := response.NewRecord(1, 1, 200, "OK", 5, header.New())
			resp := response.NewResponse(record, handle, connectionPool, true)
			body, err := resp.Body()
			Expect(err).To(BeNil())
			_, err = resp.Body()
			Expect(errors.Cause(err)).To(Equal(response.ErrHandleNotOpen))
			content, err := ioutil.ReadAll(body)
			Expect(err).To(BeNil())
			Expect(string(content)).To(Equal("hello"))
		})
		It("fails after dispose", func() {
			resp := newResponse(true)
			resp.Dispose()
			_, err := resp.Body()
			Expect(errors.Cause(err)).To(Equal(response.ErrHandleNotOpen))
		})
	})

	Describe("Header", func() {
		It("returns value case-insensitively", func() {
			hdr.Set("Content-Type", "text/html")
			resp := newResponse(true)
			Expect(resp.Header("content-type")).To(Equal("text/html"))
		})
		It("returns empty string for missing header", func() {
			resp := newResponse(true)
			Expect(resp.Header("X-Missing")).To(Equal(""))
		})
	})
})
