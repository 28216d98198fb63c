package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/adapters/receiptapi"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/logging"
)

const testToken = "tok-123"

func newRemote(t *testing.T) *httptest.Server {
	t.Helper()
	authorized := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+testToken {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload_image", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"file_path": "uploads/receipt.jpg"})
	})
	mux.HandleFunc("POST /process_image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"order_ID":"A1","customerName":"Jo","orderItemList":[{"itemName":"Rice","price":10,"quantity":2}],"totalAmount":10}`)
	})
	mux.HandleFunc("GET /customers", authorized(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"customers": []map[string]any{
			{"id": 1, "name": "Jo"},
			{"id": 2, "name": "Sam", "order_count": 4},
		}})
	}))
	mux.HandleFunc("GET /customers/search", authorized(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("deliveryPartner") != "Talabat" {
			writeJSON(w, []any{})
			return
		}
		writeJSON(w, []map[string]any{{"id": 3, "name": "Noor", "last_delivery_partner": "Talabat"}})
	}))
	mux.HandleFunc("GET /customers/download-csv", authorized(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "id,name\n2,Sam\n")
	}))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newCustomerService(t *testing.T) *customers.Service {
	t.Helper()
	return customers.NewService(backendapi.New(newRemote(t).URL), nil, logging.Discard())
}

func TestRunProcess(t *testing.T) {
	client := receiptapi.New(newRemote(t).URL)

	t.Run("reconciles the extracted payload", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "receipt.jpg")
		require.NoError(t, os.WriteFile(path, []byte("\xff\xd8\xff\xe0fake-jpeg"), 0o600))

		draft, err := RunProcess(t.Context(), client, path)
		require.NoError(t, err)

		assert.Equal(t, "A1", draft.OrderID.String())
		assert.Equal(t, "Jo", draft.CustomerName.String())
		require.Len(t, draft.OrderItems, 1)
		assert.Equal(t, "Rice", draft.OrderItems[0].ItemName.String())
		assert.InDelta(t, 10, draft.Total.Number(), 0.001)
	})

	t.Run("refuses a file that is not an image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

		_, err := RunProcess(t.Context(), client, path)
		assert.ErrorIs(t, err, receipts.ErrNotImage)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := RunProcess(t.Context(), client, filepath.Join(t.TempDir(), "nope.jpg"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestWriteDraft_JSON(t *testing.T) {
	client := receiptapi.New(newRemote(t).URL)
	path := filepath.Join(t.TempDir(), "receipt.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o600))

	draft, err := RunProcess(t.Context(), client, path)
	require.NoError(t, err)

	talabat, err := partners.Lookup("talabat")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteDraft(&buf, talabat, draft, true))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "A1", decoded["order_id"])
	assert.NotContains(t, decoded, "discount")

	buf.Reset()
	require.NoError(t, WriteDraft(&buf, talabat, draft, false))
	assert.Contains(t, buf.String(), "receipt-desk: process (Talabat)")
}

func TestRunCustomersList(t *testing.T) {
	t.Run("without filters loads everyone", func(t *testing.T) {
		var buf bytes.Buffer
		err := RunCustomersList(t.Context(), &buf, newCustomerService(t), testToken, &CustomerFlags{})
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "receipt-desk: customers\n")
		assert.Contains(t, buf.String(), "Sam")
		assert.Contains(t, buf.String(), "2 customer(s)")
	})

	t.Run("partner slug is normalized for the search", func(t *testing.T) {
		var buf bytes.Buffer
		flags := &CustomerFlags{Filters: directory.Filters{DeliveryPartner: "talabat"}}
		err := RunCustomersList(t.Context(), &buf, newCustomerService(t), testToken, flags)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "receipt-desk: customers (Talabat)")
		assert.Contains(t, buf.String(), "Noor")
		assert.Contains(t, buf.String(), "1 customer(s)")
	})

	t.Run("unknown partner", func(t *testing.T) {
		flags := &CustomerFlags{Filters: directory.Filters{DeliveryPartner: "deliveroo"}}
		err := RunCustomersList(t.Context(), io.Discard, newCustomerService(t), testToken, flags)
		assert.ErrorIs(t, err, partners.ErrUnknown)
	})

	t.Run("bad token surfaces the backend error", func(t *testing.T) {
		err := RunCustomersList(t.Context(), io.Discard, newCustomerService(t), "wrong", &CustomerFlags{})
		assert.Error(t, err)
	})
}

func TestRunCustomersExport(t *testing.T) {
	t.Run("to stdout", func(t *testing.T) {
		var buf bytes.Buffer
		err := RunCustomersExport(t.Context(), &buf, newCustomerService(t), testToken, &CustomerFlags{Output: "-"})
		require.NoError(t, err)
		assert.Equal(t, "id,name\n2,Sam\n", buf.String())
	})

	t.Run("to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), customers.ExportFilename)
		var buf bytes.Buffer
		err := RunCustomersExport(t.Context(), &buf, newCustomerService(t), testToken, &CustomerFlags{Output: path})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "id,name\n2,Sam\n", string(data))
		assert.Contains(t, buf.String(), "Wrote 14 bytes")
	})
}

type fakeLoginer struct {
	creds backendapi.Credentials
	err   error
}

func (f *fakeLoginer) Login(_ context.Context, creds backendapi.Credentials) (string, error) {
	f.creds = creds
	if f.err != nil {
		return "", f.err
	}
	return "from-login", nil
}

func TestResolveToken(t *testing.T) {
	t.Setenv("RECEIPT_DESK_TOKEN", "")
	t.Setenv("RECEIPT_DESK_PASSWORD", "secret")

	t.Run("flag wins", func(t *testing.T) {
		token, err := resolveToken(t.Context(), &fakeLoginer{}, &CustomerFlags{Token: "flag", Username: "aisha"})
		require.NoError(t, err)
		assert.Equal(t, "flag", token)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("RECEIPT_DESK_TOKEN", "env")
		token, err := resolveToken(t.Context(), &fakeLoginer{}, &CustomerFlags{})
		require.NoError(t, err)
		assert.Equal(t, "env", token)
	})

	t.Run("login with username", func(t *testing.T) {
		loginer := &fakeLoginer{}
		token, err := resolveToken(t.Context(), loginer, &CustomerFlags{Username: "aisha"})
		require.NoError(t, err)
		assert.Equal(t, "from-login", token)
		assert.Equal(t, backendapi.Credentials{Username: "aisha", Password: "secret"}, loginer.creds)
	})

	t.Run("login failure", func(t *testing.T) {
		_, err := resolveToken(t.Context(), &fakeLoginer{err: errors.New("denied")}, &CustomerFlags{Username: "aisha"})
		assert.EqualError(t, err, "denied")
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := resolveToken(t.Context(), &fakeLoginer{}, &CustomerFlags{})
		assert.Error(t, err)
	})
}

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "process", "customers", "sessions", "audit"})

	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("verbose"))

	process, _, err := root.Find([]string{"process"})
	require.NoError(t, err)
	assert.Equal(t, "talabat", process.Flags().Lookup("partner").DefValue)

	export, _, err := root.Find([]string{"customers", "export"})
	require.NoError(t, err)
	assert.Equal(t, customers.ExportFilename, export.Flags().Lookup("output").DefValue)
}

func TestProcessCommand_UnknownPartner(t *testing.T) {
	root := NewRootCommand()
	root.SetArgs([]string{"process", "--partner", "deliveroo", "--file", "x.jpg"})
	root.SetOut(io.Discard)

	err := root.Execute()
	assert.ErrorIs(t, err, partners.ErrUnknown)
}
