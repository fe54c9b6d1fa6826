package preseed

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/lyubomir-popov/maas/internal/domain"
	"github.com/lyubomir-popov/maas/internal/rpc"
)

// CurtinImage asks the machine's rack controller for its boot-image
// catalog and picks the install image matching the machine's OS,
// architecture and series. Rack unreachability and an empty match are
// distinct failures: the first is transient, the second a configuration
// gap.
func (e *Engine) CurtinImage(ctx context.Context, m *domain.Machine) (domain.BootImage, error) {
	arch, subarch := m.SplitArch()

	images, err := e.Rack.ListBootImages(ctx, m.RackID)
	if errors.Is(err, rpc.ErrNoConnections) {
		return domain.BootImage{}, ErrClusterUnavailable
	}
	if err != nil {
		return domain.BootImage{}, fmt.Errorf("failed to list boot images: %w", err)
	}

	for _, img := range images {
		if img.OSystem == m.OSystem &&
			img.Architecture == arch &&
			img.SubArchitecture == subarch &&
			img.Release == m.DistroSeries &&
			img.Purpose == domain.PurposeXinstall {
			return img, nil
		}
	}
	return domain.BootImage{}, &MissingBootImageError{
		OSystem: m.OSystem,
		Arch:    arch,
		Subarch: subarch,
		Series:  m.DistroSeries,
		Purpose: domain.PurposeXinstall,
	}
}

// CurtinInstallerURL resolves the source URL curtin fetches the root
// image from. Squashfs images are mounted by the initramfs already, so
// curtin copies the live root instead of downloading; tarballs carry no
// type prefix for compatibility with older curtin versions.
func (e *Engine) CurtinInstallerURL(ctx context.Context, m *domain.Machine) (string, error) {
	img, err := e.CurtinImage(ctx, m)
	if err != nil {
		return "", err
	}
	if img.XinstallType == "squashfs" {
		return "cp:///media/root-ro", nil
	}

	arch, subarch := m.SplitArch()
	url := fmt.Sprintf("http://%s/images/%s/%s/%s/%s/%s/%s",
		net.JoinHostPort(m.BootClusterIP, RackPort),
		m.OSystem, arch, subarch, m.DistroSeries, img.Label, img.XinstallPath)
	if img.XinstallType == "tgz" {
		return url, nil
	}
	return img.XinstallType + ":" + url, nil
}
