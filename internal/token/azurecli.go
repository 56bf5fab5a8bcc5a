package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// azureCLIResponse is the subset of `az account get-access-token`'s JSON
// output this server reads.
type azureCLIResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresOn   string `json:"expiresOn"`
}

// azureCLITimeLayout matches the local-time, no-timezone timestamp `az`
// prints for expiresOn (e.g. "2025-01-02 15:04:05.000000").
const azureCLITimeLayout = "2006-01-02 15:04:05.000000"

// NewAzureCLISource returns a Source that shells out to
// `az account get-access-token` for the Azure DevOps resource, the external
// CLI-backed credential source this server's token Provider caches in
// front of. By default it runs non-interactively so a headless server
// never blocks on a browser prompt; autoLaunchBrowser allows that prompt
// when a human is present to complete it.
func NewAzureCLISource(autoLaunchBrowser bool) Source {
	return func(ctx context.Context) (Credentials, error) {
		args := []string{"account", "get-access-token", "--resource", "499b84ac-1321-427f-aa17-267ca6975798"}
		if !autoLaunchBrowser {
			args = append(args, "--allow-no-subscriptions")
		}

		cmd := exec.CommandContext(ctx, "az", args...)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			msg := stderr.String()
			if msg == "" {
				msg = err.Error()
			}
			return Credentials{}, fmt.Errorf("az account get-access-token: %s", msg)
		}

		var resp azureCLIResponse
		if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
			return Credentials{}, fmt.Errorf("az account get-access-token: parse output: %w", err)
		}

		expiresAt, err := time.ParseInLocation(azureCLITimeLayout, resp.ExpiresOn, time.Local)
		if err != nil {
			return Credentials{}, fmt.Errorf("az account get-access-token: parse expiresOn %q: %w", resp.ExpiresOn, err)
		}

		return Credentials{Token: resp.AccessToken, ExpiresAt: expiresAt}, nil
	}
}
