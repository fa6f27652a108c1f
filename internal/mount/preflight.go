package mount

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// ErrPreflightDisabled is returned by Preflight when no address is configured.
var ErrPreflightDisabled = errors.New("mount: preflight not configured")

// Preflight connects to the remote host over SSH with the mount's identity
// file and stats RemotePath through SFTP, so a bad key or path fails with a
// clear error instead of a restart loop.
func (s *Supervisor) Preflight(ctx context.Context) error {
	addr := s.cfg.PreflightAddress
	if addr == "" {
		return ErrPreflightDisabled
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	key, err := os.ReadFile(s.cfg.IdentityFile)
	if err != nil {
		return fmt.Errorf("reading identity file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("parsing identity file %s: %w", s.cfg.IdentityFile, err)
	}

	clientConfig := &ssh.ClientConfig{
		User: s.loginUser(),
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// The bridge itself runs with StrictHostKeyChecking=no.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.cfg.PreflightTimeout.Duration,
	}

	client, err := dialSSH(ctx, addr, clientConfig)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer client.Close()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("opening sftp session: %w", err)
	}
	defer sc.Close()

	info, err := sc.Stat(s.cfg.RemotePath)
	if err != nil {
		return fmt.Errorf("remote path %s: %w", s.cfg.RemotePath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("remote path %s is not a directory", s.cfg.RemotePath)
	}
	s.logger.Info("preflight ok", "address", addr, "remote_path", s.cfg.RemotePath)
	return nil
}

// loginUser is the remote account the bridge logs in as: preflight_user,
// then the user part of a user@host remote, then the local account sshfs
// runs under, which is what ssh itself would pick.
func (s *Supervisor) loginUser() string {
	if s.cfg.PreflightUser != "" {
		return s.cfg.PreflightUser
	}
	if user, _, ok := strings.Cut(s.cfg.RemoteHost, "@"); ok && user != "" {
		return user
	}
	return s.cfg.User
}

// dialSSH is ssh.Dial bound to ctx. The whole session, not just the
// handshake, must finish within cfg.Timeout.
func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}
