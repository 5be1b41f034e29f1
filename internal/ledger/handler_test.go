package ledger

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/branch_ledger/internal/account"
)

func setupHandlerApp(t *testing.T) *fiber.App {
	t.Helper()
	svc, _ := newTestService(t,
		account.Account{Branch: 10, Number: 1001, Name: "Maria", Balance: dec("50")},
		account.Account{Branch: 25, Number: 2001, Name: "Joao", Balance: dec("0")},
		account.Account{Branch: 10, Number: 4242, Balance: dec("1")},
		account.Account{Branch: 25, Number: 4242, Balance: dec("1")},
	)
	h := NewHandler(svc)

	app := fiber.New()
	app.Put("/deposit/:agency/:account/:value", h.Deposit)
	app.Put("/withdrawal/:agency/:account/:value", h.Withdraw)
	app.Put("/transfer/:accountOrig/:accountDest/:value", h.Transfer)
	app.Put("/private", h.Promote)
	app.Delete("/account/:agency/:account", h.Delete)
	return app
}

func TestHandlerStatusCodes(t *testing.T) {
	app := setupHandlerApp(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{fiber.MethodPut, "/deposit/10/1001/10", fiber.StatusOK},
		{fiber.MethodPut, "/deposit/10/9999/10", fiber.StatusNotFound},
		{fiber.MethodPut, "/deposit/10/1001/abc", fiber.StatusBadRequest},
		{fiber.MethodPut, "/deposit/x/1001/10", fiber.StatusBadRequest},
		{fiber.MethodPut, "/deposit/10/1001/0", fiber.StatusBadRequest},
		{fiber.MethodPut, "/withdrawal/10/1001/500", fiber.StatusUnprocessableEntity},
		{fiber.MethodPut, "/transfer/1001/1001/1", fiber.StatusUnprocessableEntity},
		{fiber.MethodPut, "/transfer/1001/4242/1", fiber.StatusConflict},
		{fiber.MethodPut, "/transfer/1001/4242/1?to_agency=25", fiber.StatusOK},
		{fiber.MethodPut, "/transfer/1001/7/1", fiber.StatusNotFound},
		{fiber.MethodDelete, "/account/33/1", fiber.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: expected %d got %d", tc.method, tc.path, tc.want, resp.StatusCode)
		}
	}
}

func TestHandlerWithdrawReturnsAccount(t *testing.T) {
	app := setupHandlerApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPut, "/withdrawal/10/1001/49", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var got account.Account
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode body %s: %v", body, err)
	}
	if got.Number != 1001 || !got.Balance.IsZero() {
		t.Fatalf("unexpected account %+v", got)
	}
}

func TestHandlerPromote(t *testing.T) {
	app := setupHandlerApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPut, "/private", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)

	var private []account.Account
	if err := json.Unmarshal(body, &private); err != nil {
		t.Fatalf("decode body %s: %v", body, err)
	}
	if len(private) != 2 {
		t.Fatalf("expected one promoted account per branch, got %d", len(private))
	}
}
