package nmi

import (
	"fmt"
	"net/url"
	"strings"

	pkgerrors "github.com/kevin07696/billing-service/pkg/errors"
)

// Direct post "response" values
const (
	responseApproved = "1"
	responseDeclined = "2"
	responseError    = "3"
)

// response is the url-encoded body returned by the direct post API
type response struct {
	Response        string
	ResponseText    string
	ResponseCode    string
	AuthCode        string
	TransactionID   string
	CustomerVaultID string
	AVSResponse     string
	CVVResponse     string
}

func parseResponse(body []byte) (*response, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parse gateway response: %w", err)
	}
	resp := &response{
		Response:        values.Get("response"),
		ResponseText:    values.Get("responsetext"),
		ResponseCode:    values.Get("response_code"),
		AuthCode:        values.Get("authcode"),
		TransactionID:   values.Get("transactionid"),
		CustomerVaultID: values.Get("customer_vault_id"),
		AVSResponse:     values.Get("avsresponse"),
		CVVResponse:     values.Get("cvvresponse"),
	}
	if resp.Response == "" {
		return nil, fmt.Errorf("parse gateway response: missing response field")
	}
	return resp, nil
}

func (r *response) approved() bool {
	return r.Response == responseApproved
}

// paymentError converts a declined or rejected response into the error
// surfaced to the subscriber. The gateway text is kept verbatim.
func (r *response) paymentError() *pkgerrors.PaymentError {
	text := r.ResponseText
	if text == "" {
		text = "Transaction declined."
	}

	code := "DECLINED"
	if r.Response == responseError {
		code = "GATEWAY_REJECTED"
	}

	err := pkgerrors.NewGatewayError(code, text, categorize(r.ResponseCode))
	err.IsRetriable = r.ResponseCode == "202" || r.ResponseCode == "203"
	if r.ResponseCode != "" {
		err.WithDetail("response_code", r.ResponseCode)
	}
	return err
}

// categorize maps NMI result codes onto error categories
func categorize(code string) pkgerrors.ErrorCategory {
	switch code {
	case "202", "203":
		return pkgerrors.CategoryInsufficientFunds
	case "223":
		return pkgerrors.CategoryExpiredCard
	case "220", "221", "222", "224", "225":
		return pkgerrors.CategoryInvalidCard
	case "250", "251", "252", "253", "260", "261", "262", "263", "264":
		return pkgerrors.CategoryFraud
	case "300":
		return pkgerrors.CategoryInvalidRequest
	case "400", "410", "411", "420", "421", "430", "440", "441", "460", "461":
		return pkgerrors.CategorySystemError
	}
	if strings.HasPrefix(code, "2") {
		return pkgerrors.CategoryDeclined
	}
	return pkgerrors.CategoryVault
}
