package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/hanifauzan/greenmart/internal/cart"
	"github.com/hanifauzan/greenmart/internal/errors"
	"github.com/hanifauzan/greenmart/internal/service"
	"github.com/hanifauzan/greenmart/internal/store"
)

type guestSession struct{}

func (guestSession) Authenticated(context.Context) bool { return false }

func (guestSession) Identity(context.Context) (string, error) {
	return "", errors.ErrUnauthenticated
}

func (guestSession) Token(context.Context) (string, error) {
	return "", errors.ErrUnauthenticated
}

func newEditTestService(t *testing.T) *service.CartService {
	t.Helper()
	tariff := cart.DefaultTariff()
	guest := store.NewFileStore(filepath.Join(t.TempDir(), "guest-cart.json"), tariff)
	svc := service.NewCartService(guestSession{}, guest, nil, "guest", tariff)

	item := cart.LineItem{
		ProductId:            "P-1",
		Title:                "Tomato",
		Price:                decimal.NewFromInt(50),
		Unit:                 "kg",
		MinimumOrderQuantity: 1,
		SellerName:           "Green Farm",
	}
	_, err := svc.AddItem(context.Background(), item, 2)
	if err != nil {
		t.Fatalf("failed seeding cart with error=%v", err)
	}
	return svc
}

func runCartEdit(t *testing.T, svc *service.CartService, args ...string) error {
	t.Helper()
	command := cartEditCommand(svc)
	command.SilenceUsage = true
	command.SilenceErrors = true
	command.SetArgs(args)
	return command.ExecuteContext(context.Background())
}

func TestParseSetFlag(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		productId string
		quantity  int32
		wantErr   bool
	}{
		{name: "given valid pair should parse", value: "P-1=3", productId: "P-1", quantity: 3},
		{name: "given missing separator should fail", value: "P-1", wantErr: true},
		{name: "given empty product id should fail", value: "=3", wantErr: true},
		{name: "given non numeric quantity should fail", value: "P-1=lots", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			productId, quantity, err := parseSetFlag(test.value)
			if test.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.productId, productId)
			assert.Equal(t, test.quantity, quantity)
		})
	}
}

func TestCartEditSaveFlushesDraft(t *testing.T) {
	svc := newEditTestService(t)

	err := runCartEdit(t, svc, "--set", "P-1=5", "--save")
	assert.NoError(t, err)

	crt, err := svc.Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(5), crt.Items[0].Quantity)
}

func TestCartEditRemoveAndSaveEmptiesCart(t *testing.T) {
	svc := newEditTestService(t)

	err := runCartEdit(t, svc, "--remove", "P-1", "--save")
	assert.NoError(t, err)

	crt, err := svc.Load(context.Background())
	assert.NoError(t, err)
	assert.True(t, crt.IsEmpty())
}

func TestCartEditDiscardKeepsStore(t *testing.T) {
	svc := newEditTestService(t)

	err := runCartEdit(t, svc, "--set", "P-1=9", "--discard")
	assert.NoError(t, err)

	crt, err := svc.Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(2), crt.Items[0].Quantity)
}

func TestCartEditWithoutSaveLeavesStoreUntouched(t *testing.T) {
	svc := newEditTestService(t)

	err := runCartEdit(t, svc, "--set", "P-1=9")
	assert.NoError(t, err)

	crt, err := svc.Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(2), crt.Items[0].Quantity)
}

func TestCartEditCheckoutBlockedWhileDirty(t *testing.T) {
	svc := newEditTestService(t)

	err := runCartEdit(t, svc, "--set", "P-1=9", "--checkout")

	assert.ErrorIs(t, err, errors.ErrDraftDirty)
	crt, err := svc.Load(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int32(2), crt.Items[0].Quantity)
}
