package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kleeedolinux/wssconn/internal/testutil/wsstest"
	"github.com/kleeedolinux/wssconn/logger"
)

func TestTransport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Transport Suite")
}

func failingResolver() *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("dns unavailable")
		},
	}
}

func closedPort() string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ShouldNot(HaveOccurred())
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return strconv.Itoa(port)
}

var _ = Describe("Dialer", func() {
	var server *wsstest.Server
	var dialer *Dialer
	var conn Transport
	var err error

	logger := logger.MockLogger(GinkgoWriter)
	ctx := context.Background()

	BeforeEach(func() {
		var serverErr error
		server, serverErr = wsstest.NewServer(logger, wsstest.WithEcho())
		Expect(serverErr).ShouldNot(HaveOccurred())
	})

	AfterEach(func() {
		if conn != nil {
			conn.Release()
			conn = nil
		}
		server.Shutdown()
	})

	Context("Resolving the target", func() {
		BeforeEach(func() {
			dialer = NewDialer(logger)
		})

		It("maps service names to ports", func() {
			endpoints, err := dialer.resolve(ctx, "127.0.0.1", "https")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(endpoints).To(HaveLen(1))
			Expect(endpoints[0].String()).To(Equal("127.0.0.1:443"))
		})

		It("keeps numeric ports", func() {
			endpoints, err := dialer.resolve(ctx, "127.0.0.1", "8443")
			Expect(err).ShouldNot(HaveOccurred())
			Expect(endpoints[0].port).To(Equal("8443"))
		})
	})

	Context("Making connections", func() {
		When("Connecting to a legitimate host", func() {
			BeforeEach(func() {
				dialer = NewDialer(logger, WithTLSConfig(server.ClientTLSConfig()))
				conn, err = dialer.Dial(ctx, server.Host, server.Port, server.Path())
			})

			It("succeeds", func() {
				Expect(err).ShouldNot(HaveOccurred(), "Dialer was unable to connect: %s", err)
				Expect(server.WaitForClient(3 * time.Second)).To(Succeed())
			})

			It("identifies itself in the upgrade request", func() {
				Expect(err).ShouldNot(HaveOccurred())
				Eventually(server.UserAgents).Should(Receive(Equal(DefaultUserAgent)))
			})
		})

		When("A custom user agent is configured", func() {
			BeforeEach(func() {
				dialer = NewDialer(logger, WithTLSConfig(server.ClientTLSConfig()), WithUserAgent("tester/1.0"))
				conn, err = dialer.Dial(ctx, server.Host, server.Port, server.Path())
			})

			It("sends it", func() {
				Expect(err).ShouldNot(HaveOccurred())
				Eventually(server.UserAgents).Should(Receive(Equal("tester/1.0")))
			})
		})

		When("The host cannot be resolved", func() {
			BeforeEach(func() {
				dialer = NewDialer(logger, WithResolver(failingResolver()))
				conn, err = dialer.Dial(ctx, "nowhere.invalid", "443", "/ws")
			})

			It("fails in the resolve stage", func() {
				Expect(err).Should(HaveOccurred())
				stage, ok := FailedStage(err)
				Expect(ok).To(BeTrue())
				Expect(stage).To(Equal(StageResolve))
				Expect(err.Error()).To(HavePrefix("resolve failed"))
			})
		})

		When("Nothing listens on the port", func() {
			BeforeEach(func() {
				dialer = NewDialer(logger, WithTLSConfig(server.ClientTLSConfig()))
				conn, err = dialer.Dial(ctx, "127.0.0.1", closedPort(), "/ws")
			})

			It("fails in the connect stage", func() {
				stage, ok := FailedStage(err)
				Expect(ok).To(BeTrue())
				Expect(stage).To(Equal(StageConnect))
			})
		})

		When("The server certificate is not trusted", func() {
			BeforeEach(func() {
				dialer = NewDialer(logger)
				conn, err = dialer.Dial(ctx, server.Host, server.Port, server.Path())
			})

			It("fails in the tls stage", func() {
				stage, ok := FailedStage(err)
				Expect(ok).To(BeTrue())
				Expect(stage).To(Equal(StageTLS))
			})
		})

		When("The path does not upgrade", func() {
			BeforeEach(func() {
				dialer = NewDialer(logger, WithTLSConfig(server.ClientTLSConfig()))
				conn, err = dialer.Dial(ctx, server.Host, server.Port, "/elsewhere")
			})

			It("fails in the websocket stage", func() {
				stage, ok := FailedStage(err)
				Expect(ok).To(BeTrue())
				Expect(stage).To(Equal(StageWebSocket))
				Expect(err.Error()).To(ContainSubstring("404"))
			})
		})
	})

	Context("Exchanging messages", func() {
		BeforeEach(func() {
			dialer = NewDialer(logger, WithTLSConfig(server.ClientTLSConfig()))
			conn, err = dialer.Dial(ctx, server.Host, server.Port, server.Path())
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("is received by the server and echoed back", func() {
			Expect(conn.WriteMessage(TextMessage, []byte("whooopie"))).To(Succeed())
			Eventually(server.Received).Should(Receive(Equal("whooopie")))

			var buf bytes.Buffer
			messageType, err := conn.ReadMessage(&buf)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(messageType).To(Equal(TextMessage))
			Expect(buf.String()).To(Equal("whooopie"))
		})

		It("reports a graceful close by the peer as a peer close", func() {
			Expect(server.WaitForClient(3 * time.Second)).To(Succeed())
			Expect(server.CloseGracefully()).To(Succeed())

			var buf bytes.Buffer
			_, err := conn.ReadMessage(&buf)
			Expect(err).Should(HaveOccurred())
			Expect(IsPeerClose(err)).To(BeTrue())
		})

		It("does not treat a dropped socket as a peer close", func() {
			Expect(server.WaitForClient(3 * time.Second)).To(Succeed())
			Expect(server.Drop()).To(Succeed())

			var buf bytes.Buffer
			_, err := conn.ReadMessage(&buf)
			Expect(err).Should(HaveOccurred())
			Expect(IsPeerClose(err)).To(BeFalse())
		})

		It("closes only once", func() {
			Expect(conn.Close()).To(Succeed())
			Expect(conn.Close()).To(Succeed())
			Expect(conn.WriteMessage(TextMessage, []byte("late"))).ShouldNot(Succeed())
		})
	})
})
