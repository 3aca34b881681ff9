// Command sptth runs the local-domain HTTPS reverse proxy: a UDP DNS
// responder, a local certificate authority with per-domain leaf issuance,
// and a host-multiplexed HTTPS proxy.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"sptth/internal/config"
	"sptth/internal/dnsserver"
	"sptth/internal/logging"
	"sptth/internal/notify"
	"sptth/internal/proxy"
	"sptth/internal/supervisor"
	"sptth/internal/system"
	"sptth/internal/tls/ca"
	"sptth/internal/tls/issuer"
	"sptth/internal/tls/resolver"
	"sptth/internal/tls/trust"
)

const defaultConfigPath = "sptth.toml"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sptth [config.toml]",
		Short: "Local-domain HTTPS reverse proxy",
	}

	serveCmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the DNS responder and HTTPS proxy",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPathArg(args))
		},
	}

	trustCmd := &cobra.Command{
		Use:   "trust",
		Short: "Manage the local root certificate authority's OS trust",
	}
	trustInstallCmd := &cobra.Command{
		Use:   "install [config.toml]",
		Short: "Install the root CA into the OS trust store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrustInstall(configPathArg(args))
		},
	}
	trustCmd.AddCommand(trustInstallCmd)

	serviceCmd := &cobra.Command{
		Use:   "service",
		Short: "Manage sptth as a boot-time OS service",
	}
	serviceInstallCmd := &cobra.Command{
		Use:   "install [config.toml]",
		Short: "Register sptth to run at boot via the OS service manager",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServiceInstall(configPathArg(args))
		},
	}
	serviceUninstallCmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the sptth boot-time service registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return system.NewServiceManager().Uninstall()
		},
	}
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd)

	// Default to "serve" when no subcommand is given, matching the
	// original sptth CLI's "sptth [config.toml]" invocation.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(configPathArg(args))
	}
	root.Args = cobra.MaximumNArgs(1)
	root.AddCommand(serveCmd, trustCmd, serviceCmd)
	return root
}

func configPathArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultConfigPath
}

func runServe(configPath string) error {
	cfg, err := config.FromFile(configPath)
	if err != nil {
		return err
	}
	if !cfg.TLS.Enabled {
		return fmt.Errorf("sptth: tls.enabled = false rejects boot")
	}

	logger := logging.New(cfg.LogLevel)
	cfgLog := logging.For(logger, logging.ComponentConfig)

	pidPath := filepath.Join(cfg.TLS.CADir, "..", "sptth.pid")
	if err := system.WritePID(pidPath, os.Getpid()); err != nil {
		cfgLog.Debugf("failed to write pid file: %v", err)
	} else {
		defer system.RemovePID(pidPath)
	}

	cfgLog.Infof("loaded config from %s", configPath)
	cfgLog.Infof("records: %s", cfg.JoinedDomains())
	cfgLog.Infof("proxies: %s", cfg.JoinedProxies())
	cfgLog.Infof("dns upstream: %s", cfg.DNS.JoinedUpstream())
	cfgLog.Infof("log level: %s", cfg.LogLevel)

	notifyCfg, err := notify.LoadConfig(notify.DefaultConfigPath())
	if err != nil {
		cfgLog.Debugf("failed to load notification config: %v (using defaults)", err)
		notifyCfg = notify.DefaultConfig()
	}
	notifier := notify.NewManager(notifyCfg, notify.NewPlatformNotifier())

	rootCA, caCreated, err := ca.Load(cfg.TLS.CADir, cfg.TLS.CACommonName)
	if err != nil {
		return fmt.Errorf("sptth: provisioning CA: %w", err)
	}
	if caCreated {
		cfgLog.Infof("created new root CA at %s", rootCA.RootCertPath())
		if err := notifier.CACreated(cfg.TLS.CADir); err != nil {
			cfgLog.Debugf("notify: %v", err)
		}
	}

	domains := make([]string, 0, len(cfg.Proxies))
	for _, p := range cfg.Proxies {
		domains = append(domains, p.Domain)
	}
	certPaths, err := issuer.Provision(rootCA, cfg.TLS.CertDir, domains, cfg.TLS.ValidDays, cfg.TLS.RenewBeforeDays)
	if err != nil {
		return fmt.Errorf("sptth: issuing leaf certificates: %w", err)
	}
	issuerLog := logging.For(logger, logging.ComponentTLS)
	for _, domain := range domains {
		if !certPaths[domain].Renewed {
			continue
		}
		issuerLog.Infof("renewed leaf certificate for %s", domain)
		if nerr := notifier.CertRenewed(domain); nerr != nil {
			issuerLog.Debugf("notify: %v", nerr)
		}
	}

	if caCreated {
		trustLog := logging.For(logger, logging.ComponentTLS)
		trustor := trust.NewPlatformTrustor()
		// Running as root already satisfies the elevation requirement.
		if trustor.NeedsElevation() && os.Geteuid() != 0 {
			trustLog.Infof("root CA requires elevated privileges to install; run 'sptth trust install %s'", configPath)
		} else if err := trustor.Install(rootCA.RootCertPEM()); err != nil {
			trustLog.Errorf("installing root CA into system trust store failed: %v", err)
			if nerr := notifier.TrustFailed(err.Error()); nerr != nil {
				trustLog.Debugf("notify: %v", nerr)
			}
		} else {
			trustLog.Infof("root CA installed into system trust store")
			if nerr := notifier.TrustInstalled(); nerr != nil {
				trustLog.Debugf("notify: %v", nerr)
			}
		}
	}

	res, err := resolver.New(domains, func(domain string) ([]byte, []byte, error) {
		paths := certPaths[domain]
		certPEM, err := os.ReadFile(paths.CertPath)
		if err != nil {
			return nil, nil, err
		}
		keyPEM, err := os.ReadFile(paths.KeyPath)
		if err != nil {
			return nil, nil, err
		}
		return certPEM, keyPEM, nil
	}, logging.For(logger, logging.ComponentTLS))
	if err != nil {
		return fmt.Errorf("sptth: building TLS resolver: %w", err)
	}

	dnsLog := logging.For(logger, logging.ComponentDNS)
	dns, err := dnsserver.New(cfg.DNS.Listen, cfg.Records, cfg.DNS.Upstream, cfg.DNS.TTLSeconds, dnsLog)
	if err != nil {
		return fmt.Errorf("sptth: binding DNS listener: %w", err)
	}
	defer dns.Close()
	dnsLog.Infof("listening on %s (UDP)", dns.Addr())

	routes := make(map[string]proxy.Route, len(cfg.Proxies))
	var proxyListen string
	for _, p := range cfg.Proxies {
		routes[p.Domain] = proxy.Route{Upstream: p.Upstream}
		proxyListen = p.Listen
	}

	proxyLog := logging.For(logger, logging.ComponentProxy)
	proxySrv, err := proxy.New(proxyListen, res.Config(), routes, proxyLog)
	if err != nil {
		return fmt.Errorf("sptth: binding HTTPS listener: %w", err)
	}
	defer proxySrv.Close()
	proxyLog.Infof("listening on %s (HTTPS)", proxySrv.Addr())

	supLog := logging.For(logger, logging.ComponentSupervisor)
	supLog.Infof("sptth running; press ctrl-c to stop")
	if err := supervisor.Run(context.Background(), dns, proxySrv); err != nil {
		supLog.Errorf("fatal: %v", err)
		return err
	}
	supLog.Infof("shut down cleanly")
	return nil
}

func runTrustInstall(configPath string) error {
	cfg, err := config.FromFile(configPath)
	if err != nil {
		return err
	}
	rootCA, _, err := ca.Load(cfg.TLS.CADir, cfg.TLS.CACommonName)
	if err != nil {
		return fmt.Errorf("sptth: loading CA: %w", err)
	}
	trustor := trust.NewPlatformTrustor()
	if err := trustor.Install(rootCA.RootCertPEM()); err != nil {
		return fmt.Errorf("sptth: installing root CA: %w", err)
	}
	fmt.Println("root CA installed into system trust store")
	return nil
}

func runServiceInstall(configPath string) error {
	daemonPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("sptth: resolving daemon path: %w", err)
	}
	mgr := system.NewServiceManager()
	if err := mgr.Install(daemonPath, configPath); err != nil {
		return fmt.Errorf("sptth: installing service: %w", err)
	}
	fmt.Println("sptth registered as a boot-time service")
	return nil
}
