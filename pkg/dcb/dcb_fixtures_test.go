package dcb

// cartID and productID are the domain identifiers shared by the
// cart-event fixtures used across this package's tests, mirroring the
// ShoppingCartEvent fixture in the source material this implementation
// is grounded on.
var (
	cartID    = MustIdentifier("cart_id")
	productID = MustIdentifier("product_id")
)

// cartSchema is the static schema for cartEvent: two variants, both
// carrying cart_id and product_id.
func cartSchema() EventSchema {
	return EventSchema{
		Variants: []VariantInfo{
			{Name: "ItemAdded", DomainIds: []Identifier{cartID, productID}},
			{Name: "ItemRemoved", DomainIds: []Identifier{cartID, productID}},
		},
		DomainIds: []DomainIdInfo{
			{Ident: cartID, Type: IdentifierTypeText},
			{Ident: productID, Type: IdentifierTypeText},
		},
	}
}

// cartEvent is the test fixture's single concrete event type, distinguished
// by Kind, matching the flat-struct-with-discriminator idiom used
// throughout this implementation in place of a per-variant interface union.
type cartEvent struct {
	Kind      string
	CartID    string
	ProductID string
	Quantity  int64
}

func (e cartEvent) EventName() string { return e.Kind }

func (e cartEvent) DomainIds() DomainIdSet {
	return NewDomainIdSet().With(cartID, Text(e.CartID)).With(productID, Text(e.ProductID))
}

func (e cartEvent) Schema() EventSchema { return cartSchema() }

func itemAdded(cart, product string, qty int64) cartEvent {
	return cartEvent{Kind: "ItemAdded", CartID: cart, ProductID: product, Quantity: qty}
}

func itemRemoved(cart, product string, qty int64) cartEvent {
	return cartEvent{Kind: "ItemRemoved", CartID: cart, ProductID: product, Quantity: qty}
}

// recordedEvent adapts a cartEvent plus an assigned id to MatchableEvent
// for tests exercising the in-memory evaluator directly.
type recordedEvent struct {
	cartEvent
	id int64
}

func (r recordedEvent) AssignedID() int64 { return r.id }

// accountID and the accountEvent fixture ground the withdraw-excludes-
// deposits narrowing scenario (seed scenario S3) used by decision_test.go.
var accountID = MustIdentifier("account_id")

func accountSchema() EventSchema {
	return EventSchema{
		Variants: []VariantInfo{
			{Name: "AccountOpened", DomainIds: []Identifier{accountID}},
			{Name: "Deposited", DomainIds: []Identifier{accountID}},
			{Name: "Withdrawn", DomainIds: []Identifier{accountID}},
		},
		DomainIds: []DomainIdInfo{
			{Ident: accountID, Type: IdentifierTypeText},
		},
	}
}

type accountEvent struct {
	Kind      string
	AccountID string
	Amount    int64
}

func (e accountEvent) EventName() string { return e.Kind }

func (e accountEvent) DomainIds() DomainIdSet {
	return NewDomainIdSet().With(accountID, Text(e.AccountID))
}

func (e accountEvent) Schema() EventSchema { return accountSchema() }

type accountBalance struct {
	AccountID string
	Balance   int64
}

func (s *accountBalance) StateName() string { return "account-balance" }

func (s *accountBalance) StateQuery() StreamQuery[accountEvent] {
	return NewQuery[accountEvent](MustWithEq[accountEvent](accountID, Text(s.AccountID)))
}

func (s *accountBalance) Mutate(e accountEvent) {
	switch e.Kind {
	case "Deposited":
		s.Balance += e.Amount
	case "Withdrawn":
		s.Balance -= e.Amount
	}
}

type withdrawDecision struct {
	part   *StatePart[*accountBalance, accountEvent]
	amount int64
}

func newWithdrawDecision(accountID string, amount int64) *withdrawDecision {
	return &withdrawDecision{
		part:   NewStatePart[*accountBalance, accountEvent](&accountBalance{AccountID: accountID}),
		amount: amount,
	}
}

func (d *withdrawDecision) States() *StateSet {
	set := NewStateSet()
	AddPart(set, d.part)
	return set
}

func (d *withdrawDecision) Process() ([]Event, error) {
	if d.part.Payload.Balance < d.amount {
		return nil, NewDomainError("withdrawDecision.Process", errInsufficientBalance)
	}
	return []Event{accountEvent{Kind: "Withdrawn", AccountID: d.part.Payload.AccountID, Amount: d.amount}}, nil
}

// ValidationQuery excludes Deposited: a concurrent deposit cannot invalidate
// a withdraw that already cleared its balance check.
func (d *withdrawDecision) ValidationQuery() StreamFilter {
	return d.part.Payload.StateQuery().ExcludeEventTypes("Deposited").Filter()
}

var errInsufficientBalance = &insufficientBalanceError{}

type insufficientBalanceError struct{}

func (e *insufficientBalanceError) Error() string { return "insufficient balance" }
