package postgres_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"go-dcb/pkg/dcb"
	"go-dcb/pkg/dcb/postgres"
)

var _ = Describe("Runtime", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		store  *postgres.Store
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		truncateAll(ctx)
		store = postgres.NewStore(pool, newTestCodec(), nil)
	})

	AfterEach(func() {
		cancel()
	})

	// Seed scenario S4: every matching event is eventually delivered at
	// least once, whether or not NOTIFY fires before the next poll tick.
	It("delivers every matching event at least once", func() {
		listener := &testListener{id: "s4-at-least-once", filter: dcb.Events("Deposited")}
		runtime := postgres.NewRuntime(pool, newTestCodec(), zap.NewNop())
		runtime.Register(listener, dcb.NewListenerConfig(20*time.Millisecond))

		done := make(chan error, 1)
		go func() { done <- runtime.Run(ctx) }()

		_, err := store.Append(ctx, []dcb.Event{
			testEvent{Kind: "Deposited", AccountID: "s4-acc", Amount: 10},
			testEvent{Kind: "Deposited", AccountID: "s4-acc", Amount: 20},
		}, dcb.Events("Deposited"), 0)
		Expect(err).NotTo(HaveOccurred())

		Eventually(listener.handledCount, 5*time.Second, 10*time.Millisecond).Should(Equal(2))

		cancel()
		Eventually(done, 2*time.Second).Should(Receive())
	})

	// Seed scenario S5: a handler failure on one event must not advance the
	// cursor past it — it is redelivered, and cursor advancement resumes
	// once the handler accepts it (here: once it is no longer the amount
	// configured to fail).
	It("does not advance the cursor past a failed handle, and retries it", func() {
		listener := &testListener{id: "s5-retry", filter: dcb.Events("Withdrawn"), failAmount: 99}
		runtime := postgres.NewRuntime(pool, newTestCodec(), zap.NewNop())
		runtime.Register(listener, dcb.NewListenerConfig(20*time.Millisecond).WithNotify(false))

		done := make(chan error, 1)
		go func() { done <- runtime.Run(ctx) }()

		_, err := store.Append(ctx, []dcb.Event{
			testEvent{Kind: "Withdrawn", AccountID: "s5-acc", Amount: 99},
		}, dcb.Events("Withdrawn"), 0)
		Expect(err).NotTo(HaveOccurred())

		Consistently(listener.handledCount, 200*time.Millisecond, 20*time.Millisecond).Should(Equal(0))

		listener.setFailAmount(0)
		Eventually(listener.handledCount, 5*time.Second, 10*time.Millisecond).Should(Equal(1))

		cancel()
		Eventually(done, 2*time.Second).Should(Receive())
	})
})
