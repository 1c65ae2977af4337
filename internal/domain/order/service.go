package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/apperr"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/storefront/internal/domain/order"

// CheckoutRequest holds the input for converting a cart into an order.
type CheckoutRequest struct {
	UserID          string
	CartID          string
	ShippingAddress Address
}

// StatusUpdate is a partial update of the status flags.
type StatusUpdate struct {
	IsPaid      *bool
	IsDelivered *bool
}

// Option configures a Service.
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	now            func() time.Time
}

// WithTracerProvider sets the tracer provider for checkout spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for checkout counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Service converts carts into orders and manages order status.
type Service struct {
	carts    cart.Repository
	products product.Repository
	orders   Repository
	tx       Transactor
	now      func() time.Time

	tracer    trace.Tracer
	placed    metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	carts cart.Repository,
	products product.Repository,
	orders Repository,
	tx Transactor,
	opts ...Option,
) (*Service, error) {
	o := options{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter(instrumentationName)
	placed, err := meter.Int64Counter("store.orders.placed",
		metric.WithDescription("Orders created by checkout"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	conflicts, err := meter.Int64Counter("store.checkout.conflicts",
		metric.WithDescription("Checkouts rejected by a stock or cart conflict"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create conflicts counter")
	}

	return &Service{
		carts:     carts,
		products:  products,
		orders:    orders,
		tx:        tx,
		now:       o.now,
		tracer:    o.tracerProvider.Tracer(instrumentationName),
		placed:    placed,
		conflicts: conflicts,
	}, nil
}

// Checkout turns the user's cart into an order. Creating the order, the
// guarded stock decrement and deleting the cart happen in one transaction:
// either all of them take effect or none does.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(attribute.String("cart.id", req.CartID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}

	c, err := s.carts.GetByID(ctx, req.CartID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.UserID != req.UserID {
		return nil, cart.ErrNotFound
	}
	if len(c.Items) == 0 {
		return nil, cart.ErrEmpty
	}

	// Stored totals are derived data; price the snapshot from its items.
	c.Recalculate()

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.NewString(),
		UserID:          c.UserID,
		Items:           make([]Item, len(c.Items)),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   PaymentCash,
		Coupon:          c.Coupon,
		TotalPrice:      c.TotalPrice,
		TotalOrderPrice: c.TotalPriceAfterDiscount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	changes := make([]product.StockChange, len(c.Items))
	for i, it := range c.Items {
		o.Items[i] = Item{
			ProductID:            it.ProductID,
			Color:                it.Color,
			Quantity:             it.Quantity,
			Price:                it.Price,
			TotalProductDiscount: it.TotalProductDiscount,
		}
		changes[i] = product.StockChange{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	changes = product.MergeStockChanges(changes)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.products.DecrementStock(ctx, changes); err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if err := s.carts.Delete(ctx, c.ID, c.Version); err != nil {
			return errors.Wrap(err, "delete cart")
		}
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			s.conflicts.Add(ctx, 1)
			zctx.From(ctx).Info("Checkout rejected",
				zap.String("cart_id", c.ID),
				zap.String("user_id", c.UserID),
				zap.Error(err),
			)
		}
		return nil, errors.Wrap(err, "checkout")
	}

	s.placed.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.id", o.ID))
	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.TotalOrderPrice),
	)
	return o, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// GetOwned returns an order only if it belongs to userID. Orders of other
// users are reported as not found.
func (s *Service) GetOwned(ctx context.Context, id, userID string) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// UpdateStatus raises the paid and delivered flags. Flags are monotonic:
// asking to clear a set flag is a conflict, asking to set a set flag keeps
// its original timestamp.
func (s *Service) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Order, error) {
	if upd.IsPaid == nil && upd.IsDelivered == nil {
		return nil, ErrNoStatusChange
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	change := StatusChange{At: s.now().UTC()}
	if upd.IsPaid != nil {
		if !*upd.IsPaid && current.IsPaid {
			return nil, errors.Wrap(ErrStatusRegression, "isPaid")
		}
		change.Paid = *upd.IsPaid && !current.IsPaid
	}
	if upd.IsDelivered != nil {
		if !*upd.IsDelivered && current.IsDelivered {
			return nil, errors.Wrap(ErrStatusRegression, "isDelivered")
		}
		change.Delivered = *upd.IsDelivered && !current.IsDelivered
	}
	if !change.Paid && !change.Delivered {
		return current, nil
	}

	o, err := s.orders.UpdateStatus(ctx, id, change)
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	zctx.From(ctx).Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.Bool("is_paid", o.IsPaid),
		zap.Bool("is_delivered", o.IsDelivered),
	)
	return o, nil
}

func validateAddress(a Address) error {
	details := map[string]string{}
	if strings.TrimSpace(a.Street) == "" {
		details["shippingAddress.street"] = "is required"
	}
	if strings.TrimSpace(a.City) == "" {
		details["shippingAddress.city"] = "is required"
	}
	if strings.TrimSpace(a.Phone) == "" {
		details["shippingAddress.phone"] = "is required"
	}
	if len(details) > 0 {
		return apperr.New(apperr.KindValidation, "invalid shipping address").WithDetails(details)
	}
	return nil
}
