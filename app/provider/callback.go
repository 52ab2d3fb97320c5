package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CallbackKindSTK = "stk"
	CallbackKindB2C = "b2c"

	maxExtraEntries    = 16
	maxExtraValueBytes = 256
)

const b2cCompletedLayout = "02.01.2006 15:04:05"

// CallbackResult is the typed view of a provider notification. Known
// metadata keys get fields; anything else lands in the bounded Extra map.
type CallbackResult struct {
	Kind                string
	ProviderRequestID   string
	ProviderSecondaryID string
	ResultCode          int
	ResultDescription   string

	AmountMinor     *int64
	ReceiptNumber   *string
	TransactionTime *time.Time
	Msisdn          *string

	Extra map[string]string
}

func (r *CallbackResult) Success() bool {
	return r != nil && r.ResultCode == 0
}

type metadataItem struct {
	Name  string      `json:"Name"`
	Key   string      `json:"Key"`
	Value interface{} `json:"Value"`
}

type stkCallbackEnvelope struct {
	Body *struct {
		StkCallback *struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []metadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type b2cCallbackEnvelope struct {
	Result *struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               *int   `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
		ResultParameters         *struct {
			ResultParameter []metadataItem `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

// ParseCallback accepts both STK push (collection) and B2C result
// (disbursement) payloads. Optional metadata may be absent, as it is on
// failure callbacks; a missing result code or request id is malformed.
func ParseCallback(payload []byte) (*CallbackResult, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedCallback)
	}

	var stk stkCallbackEnvelope
	if err := decodeJSON(payload, &stk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if stk.Body != nil && stk.Body.StkCallback != nil {
		cb := stk.Body.StkCallback
		if cb.ResultCode == nil {
			return nil, fmt.Errorf("%w: stk callback without ResultCode", ErrMalformedCallback)
		}
		if strings.TrimSpace(cb.CheckoutRequestID) == "" && strings.TrimSpace(cb.MerchantRequestID) == "" {
			return nil, fmt.Errorf("%w: stk callback without request ids", ErrMalformedCallback)
		}

		result := &CallbackResult{
			Kind:                CallbackKindSTK,
			ProviderRequestID:   strings.TrimSpace(cb.CheckoutRequestID),
			ProviderSecondaryID: strings.TrimSpace(cb.MerchantRequestID),
			ResultCode:          *cb.ResultCode,
			ResultDescription:   strings.TrimSpace(cb.ResultDesc),
			Extra:               map[string]string{},
		}
		if cb.CallbackMetadata != nil {
			for _, item := range cb.CallbackMetadata.Item {
				applySTKItem(result, item)
			}
		}
		return result, nil
	}

	var b2c b2cCallbackEnvelope
	if err := decodeJSON(payload, &b2c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	if b2c.Result != nil {
		cb := b2c.Result
		if cb.ResultCode == nil {
			return nil, fmt.Errorf("%w: b2c result without ResultCode", ErrMalformedCallback)
		}
		if strings.TrimSpace(cb.ConversationID) == "" && strings.TrimSpace(cb.OriginatorConversationID) == "" {
			return nil, fmt.Errorf("%w: b2c result without conversation ids", ErrMalformedCallback)
		}

		result := &CallbackResult{
			Kind:                CallbackKindB2C,
			ProviderRequestID:   strings.TrimSpace(cb.ConversationID),
			ProviderSecondaryID: strings.TrimSpace(cb.OriginatorConversationID),
			ResultCode:          *cb.ResultCode,
			ResultDescription:   strings.TrimSpace(cb.ResultDesc),
			Extra:               map[string]string{},
		}
		if txID := strings.TrimSpace(cb.TransactionID); txID != "" && *cb.ResultCode == 0 {
			result.ReceiptNumber = &txID
		}
		if cb.ResultParameters != nil {
			for _, item := range cb.ResultParameters.ResultParameter {
				applyB2CItem(result, item)
			}
		}
		return result, nil
	}

	return nil, fmt.Errorf("%w: unrecognized payload shape", ErrMalformedCallback)
}

func applySTKItem(result *CallbackResult, item metadataItem) {
	value := scalarString(item.Value)
	switch item.Name {
	case "Amount":
		if amount, ok := minorFromMajor(value); ok {
			result.AmountMinor = &amount
		}
	case "MpesaReceiptNumber":
		if value != "" {
			result.ReceiptNumber = &value
		}
	case "TransactionDate":
		if ts, err := time.ParseInLocation(stkTimestampLayout, value, eat); err == nil {
			utc := ts.UTC()
			result.TransactionTime = &utc
		}
	case "PhoneNumber":
		if value != "" {
			result.Msisdn = &value
		}
	default:
		putExtra(result.Extra, item.Name, value)
	}
}

func applyB2CItem(result *CallbackResult, item metadataItem) {
	value := scalarString(item.Value)
	switch item.Key {
	case "TransactionAmount":
		if amount, ok := minorFromMajor(value); ok {
			result.AmountMinor = &amount
		}
	case "TransactionReceipt":
		if value != "" {
			result.ReceiptNumber = &value
		}
	case "TransactionCompletedDateTime":
		if ts, err := time.ParseInLocation(b2cCompletedLayout, value, eat); err == nil {
			utc := ts.UTC()
			result.TransactionTime = &utc
		}
	case "ReceiverPartyPublicName":
		// "2547XXXXXXXX - Jane Doe"
		if msisdn := strings.TrimSpace(strings.SplitN(value, "-", 2)[0]); msisdn != "" {
			result.Msisdn = &msisdn
		}
		putExtra(result.Extra, item.Key, value)
	default:
		putExtra(result.Extra, item.Key, value)
	}
}

func decodeJSON(payload []byte, out interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	return decoder.Decode(out)
}

func scalarString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func minorFromMajor(value string) (int64, bool) {
	if value == "" {
		return 0, false
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, false
	}
	return amount.Mul(decimal.NewFromInt(MinorUnitsPerMajor)).Round(0).IntPart(), true
}

func putExtra(extra map[string]string, key, value string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if _, exists := extra[key]; !exists && len(extra) >= maxExtraEntries {
		return
	}
	extra[key] = truncate(value, maxExtraValueBytes)
}
