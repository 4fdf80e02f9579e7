package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/stanisci/ebics-sandbox/internal/app/domain/bankaccount"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/demobank"
	"github.com/stanisci/ebics-sandbox/internal/app/domain/host"
	"github.com/stanisci/ebics-sandbox/internal/ebicscrypto"
)

const adminKeyBits = 2048

type createHostRequest struct {
	HostID       string `json:"host_id"`
	EbicsVersion string `json:"ebics_version"`
	UseX002      bool   `json:"use_x002"`
}

// adminCreateHost provisions a fresh EBICS host identity, generating its
// E002 (encryption) and A006/X002 (authentication/signature) key pairs.
func (h *handler) adminCreateHost(w http.ResponseWriter, r *http.Request) {
	var req createHostRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.HostID) == "" {
		writeError(w, errBadRequest("host_id is required"))
		return
	}
	if req.EbicsVersion == "" {
		req.EbicsVersion = "H004"
	}

	encKey, err := ebicscrypto.GenerateKeyPair(adminKeyBits)
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	authKey, err := ebicscrypto.GenerateKeyPair(adminKeyBits)
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	encPub, err := ebicscrypto.MarshalPublicKeyPEM(&encKey.PublicKey)
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	authPub, err := ebicscrypto.MarshalPublicKeyPEM(&authKey.PublicKey)
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}

	created, err := h.hosts.CreateHost(r.Context(), host.Host{
		HostID:            req.HostID,
		EbicsVersion:      req.EbicsVersion,
		UseX002:           req.UseX002,
		EncryptionPrivKey: ebicscrypto.MarshalPrivateKeyPEM(encKey),
		EncryptionPubKey:  encPub,
		AuthPrivKey:       ebicscrypto.MarshalPrivateKeyPEM(authKey),
		AuthPubKey:        authPub,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		writeError(w, errConflict(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"host_id": created.HostID})
}

type createDemobankRequest struct {
	Name                     string `json:"name"`
	Currency                 string `json:"currency"`
	DefaultDebtLimit         string `json:"default_debt_limit"`
	SuggestedExchangeAccount string `json:"suggested_exchange_account"`
}

func (h *handler) adminCreateDemobank(w http.ResponseWriter, r *http.Request) {
	var req createDemobankRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Currency) == "" {
		writeError(w, errBadRequest("name and currency are required"))
		return
	}
	if req.DefaultDebtLimit == "" {
		req.DefaultDebtLimit = "0"
	}
	created, err := h.demobanks.CreateDemobank(r.Context(), demobank.Demobank{
		ID:                       uuid.NewString(),
		Name:                     req.Name,
		Currency:                 req.Currency,
		DefaultDebtLimit:         req.DefaultDebtLimit,
		SuggestedExchangeAccount: req.SuggestedExchangeAccount,
		CreatedAt:                time.Now().UTC(),
	})
	if err != nil {
		writeError(w, errConflict(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type createCustomerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func (h *handler) adminCreateCustomer(w http.ResponseWriter, r *http.Request) {
	demobankName := mux.Vars(r)["demobankid"]
	db, err := h.demobanks.GetDemobankByName(r.Context(), demobankName)
	if err != nil {
		writeError(w, errNotFound("unknown demobank "+demobankName))
		return
	}

	var req createCustomerRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, errBadRequest("username and password are required"))
		return
	}
	hash, err := ebicscrypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}

	created, err := h.demobanks.CreateCustomer(r.Context(), demobank.Customer{
		ID:           uuid.NewString(),
		DemobankID:   db.ID,
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Phone:        req.Phone,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		writeError(w, errConflict(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type createAccountRequest struct {
	CustomerUsername string `json:"customer_username"`
	IBAN             string `json:"iban"`
	BIC              string `json:"bic"`
	OwnerName        string `json:"owner_name"`
	DebtLimit        string `json:"debt_limit"`
	IsPublic         bool   `json:"is_public"`
	IsTalerExchange  bool   `json:"is_taler_exchange"`
}

func (h *handler) adminCreateAccount(w http.ResponseWriter, r *http.Request) {
	demobankName := mux.Vars(r)["demobankid"]
	db, err := h.demobanks.GetDemobankByName(r.Context(), demobankName)
	if err != nil {
		writeError(w, errNotFound("unknown demobank "+demobankName))
		return
	}

	var req createAccountRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, errBadRequest("malformed request body: "+err.Error()))
		return
	}
	cust, err := h.demobanks.GetCustomerByUsername(r.Context(), db.ID, req.CustomerUsername)
	if err != nil {
		writeError(w, errNotFound("unknown customer "+req.CustomerUsername))
		return
	}
	if strings.TrimSpace(req.IBAN) == "" || strings.TrimSpace(req.BIC) == "" {
		writeError(w, errBadRequest("iban and bic are required"))
		return
	}
	if req.DebtLimit == "" {
		req.DebtLimit = db.DefaultDebtLimit
	}
	if req.OwnerName == "" {
		req.OwnerName = cust.FullName
	}

	now := time.Now().UTC()
	created, err := h.accounts.CreateAccount(r.Context(), bankaccount.Account{
		ID:              uuid.NewString(),
		DemobankID:      db.ID,
		CustomerID:      cust.ID,
		IBAN:            req.IBAN,
		BIC:             req.BIC,
		OwnerName:       req.OwnerName,
		Currency:        db.Currency,
		DebtLimit:       req.DebtLimit,
		IsPublic:        req.IsPublic,
		IsTalerExchange: req.IsTalerExchange,
		LastBalance:     "0",
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		writeError(w, errConflict(err.Error()))
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// adminForceTick triggers an out-of-schedule statement close, matching the
// "camt053tick"/"reset-tables"-style administrative operations the command
// surface otherwise only exposes from the CLI.
func (h *handler) adminForceTick(w http.ResponseWriter, r *http.Request) {
	if err := h.tick.RunTick(r.Context()); err != nil {
		writeError(w, errInternal(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []auditEntry{})
		return
	}
	limit, err := parseLimitParam(r.URL.Query().Get("limit"), 200)
	if err != nil {
		writeError(w, errBadRequest(err.Error()))
		return
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			writeError(w, errBadRequest("offset must be a non-negative integer"))
			return
		}
		offset = v
	}
	entries := h.audit.listLimit(limit + offset)
	if offset > 0 && offset < len(entries) {
		entries = entries[offset:]
	} else if offset >= len(entries) {
		entries = nil
	}
	writeJSON(w, http.StatusOK, entries)
}
