package preseed

import (
	"context"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// StaticKernelResolver maps hwe_kernel flavors to kernel packages from a
// fixed table, with a conventional linux-image-<flavor> fallback for
// flavors the table does not know.
type StaticKernelResolver struct {
	Packages map[string]string
}

// NewStaticKernelResolver returns a resolver preloaded with the
// hardware-enablement flavors the stock Ubuntu archive carries.
func NewStaticKernelResolver() *StaticKernelResolver {
	return &StaticKernelResolver{
		Packages: map[string]string{
			"hwe-x":        "linux-image-generic-hwe-16.04",
			"hwe-b":        "linux-image-generic-hwe-18.04",
			"hwe-f":        "linux-image-generic-hwe-20.04",
			"ga-16.04":     "linux-image-generic",
			"ga-18.04":     "linux-image-generic",
			"lowlatency":   "linux-image-lowlatency",
			"lowlatency-x": "linux-image-lowlatency-hwe-16.04",
		},
	}
}

func (r *StaticKernelResolver) KernelPackage(_ context.Context, m *domain.Machine) (string, error) {
	if pkg, ok := r.Packages[m.HWEKernel]; ok {
		return pkg, nil
	}
	return "linux-image-" + m.HWEKernel, nil
}
