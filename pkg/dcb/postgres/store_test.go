package postgres_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-dcb/pkg/dcb"
	"go-dcb/pkg/dcb/postgres"
)

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		store *postgres.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		store = postgres.NewStore(pool, newTestCodec(), nil)
	})

	It("appends and streams events back in id order", func() {
		events := []dcb.Event{
			testEvent{Kind: "Opened", AccountID: "acc-1"},
			testEvent{Kind: "Deposited", AccountID: "acc-1", Amount: 100},
		}
		persisted, err := store.Append(ctx, events, dcb.Events("Opened", "Deposited"), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(persisted).To(HaveLen(2))
		Expect(persisted[0].ID).To(BeNumerically("<", persisted[1].ID))

		stream, err := store.Stream(ctx, dcb.Eq(testAccountID, dcb.Text("acc-1")))
		Expect(err).NotTo(HaveOccurred())
		defer stream.Close()

		var got []dcb.PersistedEvent
		for stream.Next(ctx) {
			got = append(got, stream.Event())
		}
		Expect(stream.Err()).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(2))
	})

	It("rejects an append whose validation query already has a matching event past expectedVersion", func() {
		_, err := store.Append(ctx, []dcb.Event{testEvent{Kind: "Opened", AccountID: "acc-2"}},
			dcb.Events("Opened"), 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Append(ctx, []dcb.Event{testEvent{Kind: "Withdrawn", AccountID: "acc-2", Amount: 10}},
			dcb.Events("Opened"), 0)
		Expect(dcb.IsConcurrencyError(err)).To(BeTrue())
	})

	// Two decisions racing to open the same account from the same
	// (empty) load version: the SERIALIZABLE-transaction EXISTS-then-insert
	// append must let exactly one win and reject the other as a
	// ConcurrencyError, never both committing (spec.md §8.2).
	It("lets exactly one of two concurrent conflicting appends win", func() {
		filter := dcb.Eq(testAccountID, dcb.Text("acc-race"))

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = store.Append(ctx,
					[]dcb.Event{testEvent{Kind: "Opened", AccountID: "acc-race"}},
					filter, 0)
			}(i)
		}
		wg.Wait()

		successes, conflicts := 0, 0
		for _, err := range results {
			switch {
			case err == nil:
				successes++
			case dcb.IsConcurrencyError(err):
				conflicts++
			}
		}
		Expect(successes).To(Equal(1))
		Expect(conflicts).To(Equal(1))
	})

	It("reports Head as the highest assigned event id", func() {
		head0, err := store.Head(ctx)
		Expect(err).NotTo(HaveOccurred())

		persisted, err := store.Append(ctx, []dcb.Event{testEvent{Kind: "Opened", AccountID: "acc-3"}},
			dcb.Events("Opened"), 0)
		Expect(err).NotTo(HaveOccurred())

		head1, err := store.Head(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(head1).To(Equal(persisted[0].ID))
		Expect(head1).To(BeNumerically(">", head0))
	})
})
