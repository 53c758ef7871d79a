package l402

import "net/http"

// PaymentRoundTripper implements http.RoundTripper with transparent
// L402 payment handling, so ordinary *http.Client users never see a
// 402.
type PaymentRoundTripper struct {
	// Transport dispatches the actual requests. Nil falls back to
	// http.DefaultTransport.
	Transport http.RoundTripper

	client *Client
}

// NewPaymentRoundTripper wraps transport with payment negotiation
// driven by client.
func NewPaymentRoundTripper(client *Client, transport http.RoundTripper) *PaymentRoundTripper {
	return &PaymentRoundTripper{
		Transport: transport,
		client:    client,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *PaymentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return t.client.do(req, transport)
}

// WrapHTTPClient installs payment handling on a standard *http.Client.
// The caller keeps issuing plain requests; paywalled responses are
// negotiated behind its back.
func WrapHTTPClient(httpClient *http.Client, client *Client) *http.Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	httpClient.Transport = NewPaymentRoundTripper(client, httpClient.Transport)
	return httpClient
}
