package listsync

// json frames exchanged between the websocket store client and server.
// the store's tree values are json-native (nested objects of strings), so the
// frames carry them as-is.
//
// client -> server: subscribe, unsubscribe, write, delete
// server -> client: snapshot (per subscription), result (per request)

const (
	wsOpSubscribe   = "subscribe"
	wsOpUnsubscribe = "unsubscribe"
	wsOpWrite       = "write"
	wsOpDelete      = "delete"
	wsOpSnapshot    = "snapshot"
	wsOpResult      = "result"
)

type wsMessage struct {
	Op string `json:"op"`
	// client-chosen subscription id, echoed on every snapshot. starts at 1.
	SubId int `json:"subId,omitempty"`
	// client-chosen request id, echoed on the matching result. starts at 1.
	RequestId int    `json:"requestId,omitempty"`
	Path      string `json:"path,omitempty"`
	// written value, or full snapshot at the subscribed path (absent when the
	// path does not exist)
	Value any `json:"value,omitempty"`
	// non-empty on a failed result, or on a terminated subscription
	Error string `json:"error,omitempty"`
}
