package wallet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/playwright-community/playwright-go"
)

// BindingName is the page-global function window.ethereum.request forwards to.
const BindingName = "__vaultsWalletRequest"

var initScript = template.Must(template.New("ethereum").Parse(`(() => {
  if (window.ethereum && window.ethereum.__vaultsMock) return;
  const listeners = {};
  const provider = {
    __vaultsMock: true,
    isMetaMask: true,
    isConnected: () => true,
    selectedAddress: null,
    chainId: {{.ChainHex}},
    networkVersion: {{.NetVersion}},
    on(event, fn) {
      (listeners[event] = listeners[event] || []).push(fn);
      return provider;
    },
    removeListener(event, fn) {
      const list = listeners[event] || [];
      const i = list.indexOf(fn);
      if (i >= 0) list.splice(i, 1);
      return provider;
    },
    emit(event, data) {
      if (event === "accountsChanged") provider.selectedAddress = (data && data[0]) || null;
      if (event === "chainChanged") provider.chainId = data;
      for (const fn of (listeners[event] || []).slice()) {
        try { fn(data); } catch (e) { console.error("wallet listener failed", e); }
      }
    },
    async request(args) {
      const method = args && args.method;
      const params = (args && args.params) || [];
      const raw = await window[{{.Binding}}](method, params);
      const resp = JSON.parse(raw);
      for (const ev of resp.events || []) provider.emit(ev.event, ev.data);
      if (resp.error) {
        const err = new Error(resp.error.message);
        err.code = resp.error.code;
        throw err;
      }
      return resp.result;
    },
    enable() { return provider.request({ method: "eth_requestAccounts" }); },
  };
  provider.off = provider.removeListener;
  provider.addListener = provider.on;
  window.ethereum = provider;

  const info = Object.freeze({
    uuid: {{.UUID}},
    name: "Vaults Test Wallet",
    icon: "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg'/%3E",
    rdns: "io.vaults.testwallet",
  });
  const announce = () => window.dispatchEvent(new CustomEvent("eip6963:announceProvider", {
    detail: Object.freeze({ info, provider }),
  }));
  window.addEventListener("eip6963:requestProvider", announce);
  announce();
  window.dispatchEvent(new Event("ethereum#initialized"));
})();
`))

type scriptData struct {
	ChainHex   string
	NetVersion string
	Binding    string
	UUID       string
}

// InitScript renders the script that defines window.ethereum.
func (p *Provider) InitScript() string {
	chain := p.ChainID()
	var buf bytes.Buffer
	err := initScript.Execute(&buf, scriptData{
		ChainHex:   jsString(fmt.Sprintf("0x%x", chain)),
		NetVersion: jsString(fmt.Sprintf("%d", chain)),
		Binding:    jsString(BindingName),
		UUID:       jsString("7e1b6c1e-5d0a-4e4c-9a53-" + strings.ToLower(p.account.Hex()[2:14])),
	})
	if err != nil {
		// The template and its data are fixed; a failure here is a programming error.
		panic(fmt.Sprintf("wallet: render init script: %v", err))
	}
	return buf.String()
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// HandleJSON answers a request arriving from the page binding and returns the
// JSON document the init script expects.
func (p *Provider) HandleJSON(args ...any) string {
	if len(args) == 0 {
		return encodeResponse(Response{Error: rpcErr(CodeInvalidParams, "missing method")})
	}
	method, ok := args[0].(string)
	if !ok || method == "" {
		return encodeResponse(Response{Error: rpcErr(CodeInvalidParams, "missing method")})
	}
	var params []any
	if len(args) > 1 {
		switch v := args[1].(type) {
		case []any:
			params = v
		case nil:
		default:
			params = []any{v}
		}
	}
	return encodeResponse(p.Handle(method, params))
}

func encodeResponse(resp Response) string {
	raw, err := json.Marshal(resp)
	if err != nil {
		raw, _ = json.Marshal(Response{Error: rpcErr(CodeInternal, "encode response: %v", err)})
	}
	return string(raw)
}

// Install exposes the request binding and registers the init script on ctx.
// It must run before the first navigation so every page sees the provider.
func (p *Provider) Install(ctx playwright.BrowserContext) error {
	err := ctx.ExposeBinding(BindingName, func(source *playwright.BindingSource, args ...interface{}) interface{} {
		return p.HandleJSON(args...)
	})
	if err != nil {
		return fmt.Errorf("wallet: expose binding: %w", err)
	}
	script := p.InitScript()
	if err := ctx.AddInitScript(playwright.Script{Content: &script}); err != nil {
		return fmt.Errorf("wallet: add init script: %w", err)
	}
	logger.Info("wallet_installed", "address", p.account.Hex(), "chain_id", p.ChainID())
	return nil
}
