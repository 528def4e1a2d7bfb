package testing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"conformance/internal/admin"
	"conformance/internal/config"
	"conformance/internal/deployment"
	"conformance/internal/ingress"
	"conformance/internal/orchestrator"
	"conformance/pkg/logging"
)

// classLifecycle binds one class deployment to the lifetime of its class.
type classLifecycle struct {
	deployer   Deployer
	logs       orchestrator.LogSource
	httpClient *http.Client
	log        *logging.Logger
	cfg        config.GlobalConfig
	reportDir  string
	stderr     io.Writer

	descriptor deployment.Descriptor
	env        *classEnv
}

// prepare builds the deployment descriptor of class.
func (l *classLifecycle) prepare(class TestClass) error {
	d, err := deployment.Build(class.Configure)
	if err != nil {
		return fmt.Errorf("invalid deployment for %s: %w", class.Name, err)
	}
	l.descriptor = d
	return nil
}

// retained reports whether the deployment outlives the class.
func (l *classLifecycle) retained() bool {
	return l.cfg.RetainAfterEnd || l.descriptor.RetainAfterEnd()
}

// beforeAll starts the deployment prepared for class. On error the partially
// created deployment is kept so afterAll can remove it.
func (l *classLifecycle) beforeAll(ctx context.Context, class TestClass) error {
	rd, err := l.deployer.Start(ctx, class.Name, l.cfg, l.descriptor)
	if rd != nil {
		l.env = &classEnv{deployment: rd, cfg: l.cfg}
	}
	if err != nil {
		return err
	}

	l.env.ingress = ingress.New(rd.IngressURL,
		ingress.WithHTTPClient(l.httpClient),
		ingress.WithRequestTimeout(l.cfg.RequestTimeout),
		ingress.WithLogger(l.log))
	l.env.admin = admin.New(rd.AdminURL, l.httpClient, admin.WithLogger(l.log))
	return nil
}

// afterAll saves the container logs of the class and stops its deployment.
// Logs of an aborted class are also copied to the stderr transcript.
func (l *classLifecycle) afterAll(ctx context.Context, class TestClass, outcome *ClassOutcome) error {
	if l.env == nil {
		return nil
	}
	rd := l.env.deployment
	outcome.Retained = rd.Retained()

	if l.logs != nil && l.reportDir != "" {
		files, err := rd.SaveLogs(ctx, l.logs, filepath.Join(l.reportDir, class.Name))
		outcome.LogFiles = files
		if err != nil {
			outcome.TeardownError = fmt.Sprintf("saving logs: %v", err)
		}
		if outcome.Aborted && l.stderr != nil {
			copyLogs(l.stderr, class.Name, files)
		}
	}
	return l.deployer.Stop(ctx, rd)
}

func copyLogs(w io.Writer, class string, files []string) {
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "===== %s: %s =====\n", class, filepath.Base(path))
		_, _ = io.Copy(w, f)
		f.Close()
	}
}
