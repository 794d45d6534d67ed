package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AltanReisoglu/UCP-AGENT/internal/catalog"
	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
	"github.com/AltanReisoglu/UCP-AGENT/internal/pipeline"
)

// toolFunc handles one named tool call. Dispatch is a closed table:
// unknown names are rejected, nothing is resolved dynamically.
type toolFunc func(w http.ResponseWriter, r *http.Request)

func (s *Server) toolTable() map[string]toolFunc {
	return map[string]toolFunc{
		"search_products":   s.searchProducts,
		"get_product":       s.getProduct,
		"create_checkout":   s.createCheckout,
		"get_checkout":      s.getCheckout,
		"update_checkout":   s.updateCheckout,
		"complete_checkout": s.completeCheckout,
		"cancel_checkout":   s.cancelCheckout,
		"get_binding_url":   s.getBindingURL,
	}
}

func (s *Server) dispatchTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tool")
	tool, ok := s.tools[name]
	if !ok {
		respondError(w, http.StatusNotFound, "unknown_tool", fmt.Sprintf("no tool named %q", name))
		return
	}
	tool(w, r)
}

func decodeParams(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// checkoutEnvelope is the success payload shared by the checkout tools.
type checkoutEnvelope struct {
	Status   string                  `json:"status"`
	Checkout *domain.CheckoutSession `json:"checkout"`
	Warnings []pipeline.Warning      `json:"warnings,omitempty"`
	Order    *domain.Order           `json:"order,omitempty"`
}

type searchProductsParams struct {
	Query string `json:"query"`
}

func (s *Server) searchProducts(w http.ResponseWriter, r *http.Request) {
	var params searchProductsParams
	if !decodeParams(w, r, &params) {
		return
	}

	products, err := s.catalog.Search(r.Context(), params.Query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "catalog search failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"products": products,
	})
}

type getProductParams struct {
	ProductID string `json:"product_id"`
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	var params getProductParams
	if !decodeParams(w, r, &params) {
		return
	}
	if params.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "product_id is required")
		return
	}

	product, err := s.catalog.Get(r.Context(), params.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondError(w, http.StatusNotFound, "product_not_found", fmt.Sprintf("no product %q", params.ProductID))
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "catalog lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"product": product,
	})
}

type createCheckoutParams struct {
	Items []domain.ItemInput `json:"items"`
}

func (s *Server) createCheckout(w http.ResponseWriter, r *http.Request) {
	var params createCheckoutParams
	if !decodeParams(w, r, &params) {
		return
	}

	result, err := s.engine.Create(r.Context(), params.Items)
	if err != nil {
		handleEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, checkoutEnvelope{
		Status:   "success",
		Checkout: result.Session,
		Warnings: result.Warnings,
	})
}

type checkoutIDParams struct {
	CheckoutID string `json:"checkout_id"`
}

func (s *Server) getCheckout(w http.ResponseWriter, r *http.Request) {
	var params checkoutIDParams
	if !decodeParams(w, r, &params) {
		return
	}
	if params.CheckoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	session, err := s.engine.Get(r.Context(), params.CheckoutID)
	if err != nil {
		handleEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkoutEnvelope{Status: "success", Checkout: session})
}

type updateCheckoutParams struct {
	CheckoutID      string              `json:"checkout_id"`
	Patch           *domain.UpdatePatch `json:"patch"`
	ExpectedVersion *int64              `json:"expected_version,omitempty"`
}

func (s *Server) updateCheckout(w http.ResponseWriter, r *http.Request) {
	var params updateCheckoutParams
	if !decodeParams(w, r, &params) {
		return
	}
	if params.CheckoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	result, err := s.engine.Update(r.Context(), params.CheckoutID, params.Patch, params.ExpectedVersion)
	if err != nil {
		handleEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkoutEnvelope{
		Status:   "success",
		Checkout: result.Session,
		Warnings: result.Warnings,
	})
}

type versionedCheckoutParams struct {
	CheckoutID      string `json:"checkout_id"`
	ExpectedVersion *int64 `json:"expected_version,omitempty"`
}

func (s *Server) completeCheckout(w http.ResponseWriter, r *http.Request) {
	var params versionedCheckoutParams
	if !decodeParams(w, r, &params) {
		return
	}
	if params.CheckoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	result, err := s.engine.Complete(r.Context(), params.CheckoutID, params.ExpectedVersion)
	if err != nil {
		handleEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkoutEnvelope{
		Status:   "success",
		Checkout: result.Session,
		Warnings: result.Warnings,
		Order:    result.Order,
	})
}

func (s *Server) cancelCheckout(w http.ResponseWriter, r *http.Request) {
	var params versionedCheckoutParams
	if !decodeParams(w, r, &params) {
		return
	}
	if params.CheckoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	result, err := s.engine.Cancel(r.Context(), params.CheckoutID, params.ExpectedVersion)
	if err != nil {
		handleEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checkoutEnvelope{Status: "success", Checkout: result.Session})
}

// getBindingURL hands an agent the embedded checkout entry point so it
// can hand the session over to a human-driven UI.
func (s *Server) getBindingURL(w http.ResponseWriter, r *http.Request) {
	var params checkoutIDParams
	if !decodeParams(w, r, &params) {
		return
	}
	if params.CheckoutID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "checkout_id is required")
		return
	}

	if _, err := s.engine.Get(r.Context(), params.CheckoutID); err != nil {
		handleEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"url":    fmt.Sprintf("%s/embedded-checkout/%s", s.baseURL, params.CheckoutID),
	})
}
