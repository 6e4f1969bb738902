package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/roamjet/backend/internal/apierr"
	"github.com/roamjet/backend/internal/config"
	"github.com/roamjet/backend/internal/repository"
)

// walletState scripts the rows the payment transaction reads and records
// every write it performs, so the debit path can be checked without MySQL.
type walletState struct {
	orderID     string
	ownerID     string
	status      string
	orderAmount float64
	balance     float64

	execs     []execRecord
	commits   int
	rollbacks int
}

type execRecord struct {
	query string
	args  []driver.Value
}

func (s *walletState) execsMatching(fragment string) []execRecord {
	var matched []execRecord
	for _, e := range s.execs {
		if strings.Contains(e.query, fragment) {
			matched = append(matched, e)
		}
	}
	return matched
}

var currentWalletState *walletState

type walletDriver struct{}

func (walletDriver) Open(string) (driver.Conn, error) {
	return &walletConn{state: currentWalletState}, nil
}

func init() {
	sql.Register("walletfake", walletDriver{})
}

type walletConn struct {
	state *walletState
}

func (c *walletConn) Prepare(query string) (driver.Stmt, error) {
	return &walletStmt{query: query, state: c.state}, nil
}

func (c *walletConn) Close() error { return nil }

func (c *walletConn) Begin() (driver.Tx, error) {
	return &walletTx{state: c.state}, nil
}

type walletTx struct {
	state *walletState
}

func (t *walletTx) Commit() error {
	t.state.commits++
	return nil
}

func (t *walletTx) Rollback() error {
	t.state.rollbacks++
	return nil
}

type walletStmt struct {
	query string
	state *walletState
}

func (s *walletStmt) Close() error  { return nil }
func (s *walletStmt) NumInput() int { return -1 }

func (s *walletStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.state.execs = append(s.state.execs, execRecord{query: s.query, args: args})
	return driver.RowsAffected(1), nil
}

func (s *walletStmt) Query(args []driver.Value) (driver.Rows, error) {
	st := s.state
	now := time.Now()
	switch {
	case strings.Contains(s.query, "FOR UPDATE") && strings.Contains(s.query, "FROM orders"):
		return &walletRows{
			cols: []string{"user_id", "status", "amount"},
			rows: [][]driver.Value{{st.ownerID, st.status, st.orderAmount}},
		}, nil
	case strings.Contains(s.query, "FOR UPDATE") && strings.Contains(s.query, "FROM users"):
		return &walletRows{
			cols: []string{"wallet_balance"},
			rows: [][]driver.Value{{st.balance}},
		}, nil
	case strings.Contains(s.query, "FROM orders"):
		return &walletRows{
			cols: []string{"id", "user_id", "plan_slug", "amount", "currency", "status", "esim_data", "created_at", "updated_at"},
			rows: [][]driver.Value{{st.orderID, st.ownerID, "us-5gb", st.orderAmount, "USD", st.status, "", now, now}},
		}, nil
	default:
		return &walletRows{}, nil
	}
}

type walletRows struct {
	cols []string
	rows [][]driver.Value
	i    int
}

func (r *walletRows) Columns() []string { return r.cols }
func (r *walletRows) Close() error      { return nil }

func (r *walletRows) Next(dest []driver.Value) error {
	if r.i >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.i])
	r.i++
	return nil
}

func walletTestService(t *testing.T, state *walletState) *EsimService {
	t.Helper()
	currentWalletState = state
	db, err := sql.Open("walletfake", "")
	if err != nil {
		t.Fatalf("open fake db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	orders := repository.NewOrderRepository(db)
	users := repository.NewUserRepository(db)
	return NewEsimService(config.Config{}, testLogger(), orders, users, nil, nil, nil, nil)
}

func TestProcessWalletPaymentDebitsStoredOrderAmount(t *testing.T) {
	state := &walletState{orderID: "o1", ownerID: "u1", status: "initiated", orderAmount: 10.00, balance: 50.00}
	svc := walletTestService(t, state)

	result, err := svc.ProcessWalletPayment(context.Background(), "u1", "o1", 10.00)
	if err != nil {
		t.Fatalf("ProcessWalletPayment: %v", err)
	}
	if result.NewBalance != 40.00 {
		t.Errorf("NewBalance = %v, want 40", result.NewBalance)
	}
	if result.EsimID == "" {
		t.Error("EsimID must be set on success")
	}

	debits := state.execsMatching("UPDATE users SET wallet_balance")
	if len(debits) != 1 || debits[0].args[0] != 10.00 {
		t.Fatalf("debit execs = %+v, want one debit of the stored order amount", debits)
	}
	ledger := state.execsMatching("INSERT INTO wallet_transactions")
	if len(ledger) != 1 || ledger[0].args[2] != -10.00 {
		t.Fatalf("ledger execs = %+v, want one entry of -10", ledger)
	}
	if len(state.execsMatching("UPDATE orders SET status")) != 1 {
		t.Error("order completion update missing")
	}
	if len(state.execsMatching("INSERT INTO esims")) != 1 {
		t.Error("esim insert missing")
	}
	if state.commits != 1 {
		t.Errorf("commits = %d, want 1", state.commits)
	}
}

func TestProcessWalletPaymentRejectsMismatchedAmount(t *testing.T) {
	// A caller must not be able to settle a $10 order by sending a smaller
	// amount; the stored order amount is authoritative.
	state := &walletState{orderID: "o1", ownerID: "u1", status: "initiated", orderAmount: 10.00, balance: 50.00}
	svc := walletTestService(t, state)

	_, err := svc.ProcessWalletPayment(context.Background(), "u1", "o1", 0.01)
	if err == nil {
		t.Fatal("mismatched amount must be rejected")
	}
	if apierr.From(err).Code != apierr.CodeFailedPrecondition {
		t.Errorf("code = %v, want failed-precondition", apierr.From(err).Code)
	}
	assertNoWalletWrites(t, state)
}

func TestProcessWalletPaymentCompletedOrderFails(t *testing.T) {
	state := &walletState{orderID: "o1", ownerID: "u1", status: "completed", orderAmount: 10.00, balance: 50.00}
	svc := walletTestService(t, state)

	_, err := svc.ProcessWalletPayment(context.Background(), "u1", "o1", 10.00)
	if err == nil {
		t.Fatal("second payment against a completed order must fail")
	}
	if apierr.From(err).Code != apierr.CodeFailedPrecondition {
		t.Errorf("code = %v, want failed-precondition", apierr.From(err).Code)
	}
	assertNoWalletWrites(t, state)
}

func TestProcessWalletPaymentWrongOwnerFails(t *testing.T) {
	state := &walletState{orderID: "o1", ownerID: "someone-else", status: "initiated", orderAmount: 10.00, balance: 50.00}
	svc := walletTestService(t, state)

	_, err := svc.ProcessWalletPayment(context.Background(), "u1", "o1", 10.00)
	if err == nil {
		t.Fatal("foreign order must be rejected")
	}
	if apierr.From(err).Code != apierr.CodePermissionDenied {
		t.Errorf("code = %v, want permission-denied", apierr.From(err).Code)
	}
	assertNoWalletWrites(t, state)
}

func TestProcessWalletPaymentInsufficientFunds(t *testing.T) {
	state := &walletState{orderID: "o1", ownerID: "u1", status: "initiated", orderAmount: 10.00, balance: 5.00}
	svc := walletTestService(t, state)

	_, err := svc.ProcessWalletPayment(context.Background(), "u1", "o1", 10.00)
	if err == nil {
		t.Fatal("payment above the balance must fail")
	}
	if apierr.From(err).Code != apierr.CodeFailedPrecondition {
		t.Errorf("code = %v, want failed-precondition", apierr.From(err).Code)
	}
	assertNoWalletWrites(t, state)
}

func assertNoWalletWrites(t *testing.T, state *walletState) {
	t.Helper()
	for _, fragment := range []string{"UPDATE users", "INSERT INTO wallet_transactions", "UPDATE orders", "INSERT INTO esims"} {
		if got := state.execsMatching(fragment); len(got) != 0 {
			t.Errorf("unexpected writes %q: %+v", fragment, got)
		}
	}
	if state.commits != 0 {
		t.Errorf("commits = %d, want 0", state.commits)
	}
	if state.rollbacks == 0 {
		t.Error("transaction must be rolled back")
	}
}
