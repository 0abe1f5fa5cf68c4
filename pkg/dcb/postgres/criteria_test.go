package postgres_test

import (
	"context"
	"sort"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"go-dcb/pkg/dcb"
	"go-dcb/pkg/dcb/postgres"
)

// These specs check the property spec.md §8.4 requires: for any filter tree,
// the SQL lowering (BuildCriteria, exercised here via Store.Stream against a
// real Postgres) and the in-memory evaluator (dcb.Matches) must agree
// pointwise on every persisted event.
var _ = Describe("SQL/in-memory filter agreement", func() {
	var (
		ctx   context.Context
		store *postgres.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		store = postgres.NewStore(pool, newTestCodec(), nil)

		seed := []dcb.Event{
			testEvent{Kind: "Opened", AccountID: "acc-a"},
			testEvent{Kind: "Deposited", AccountID: "acc-a", Amount: 50},
			testEvent{Kind: "Withdrawn", AccountID: "acc-a", Amount: 20},
			testEvent{Kind: "Opened", AccountID: "acc-b"},
			testEvent{Kind: "Deposited", AccountID: "acc-b", Amount: 10},
		}
		_, err := store.Append(ctx, seed, dcb.Events("Opened", "Deposited", "Withdrawn"), 0)
		Expect(err).NotTo(HaveOccurred())
	})

	assertAgreement := func(filter dcb.StreamFilter) {
		all, err := store.Stream(ctx, dcb.Events("Opened", "Deposited", "Withdrawn"))
		Expect(err).NotTo(HaveOccurred())
		var everything []dcb.PersistedEvent
		for all.Next(ctx) {
			everything = append(everything, all.Event())
		}
		Expect(all.Err()).NotTo(HaveOccurred())
		Expect(all.Close()).To(Succeed())

		var expectedIDs []int64
		for _, pe := range everything {
			if dcb.Matches(filter, pe) {
				expectedIDs = append(expectedIDs, pe.ID)
			}
		}
		sort.Slice(expectedIDs, func(i, j int) bool { return expectedIDs[i] < expectedIDs[j] })

		stream, err := store.Stream(ctx, filter)
		Expect(err).NotTo(HaveOccurred())
		var actualIDs []int64
		for stream.Next(ctx) {
			actualIDs = append(actualIDs, stream.Event().ID)
		}
		Expect(stream.Err()).NotTo(HaveOccurred())
		Expect(stream.Close()).To(Succeed())

		Expect(actualIDs).To(Equal(expectedIDs))
	}

	It("agrees on a plain identifier equality filter", func() {
		assertAgreement(dcb.Eq(testAccountID, dcb.Text("acc-a")))
	})

	It("agrees on an And of event-type and identifier filters", func() {
		assertAgreement(dcb.And(dcb.Events("Deposited"), dcb.Eq(testAccountID, dcb.Text("acc-a"))))
	})

	It("agrees on an Or across two accounts", func() {
		assertAgreement(dcb.Or(
			dcb.Eq(testAccountID, dcb.Text("acc-a")),
			dcb.Eq(testAccountID, dcb.Text("acc-b")),
		))
	})

	It("agrees on ExcludeEvents narrowing", func() {
		assertAgreement(dcb.And(
			dcb.Eq(testAccountID, dcb.Text("acc-a")),
			dcb.ExcludeEvents("Deposited"),
		))
	})

	It("agrees on Origin narrowing", func() {
		assertAgreement(dcb.And(dcb.Events("Opened", "Deposited", "Withdrawn"), dcb.Origin(2)))
	})
})
