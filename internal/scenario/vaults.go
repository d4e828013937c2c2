package scenario

import (
	"context"
	"strings"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/display"
	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/pages"
)

// VaultList checks the listing renders rows, names and APRs.
func VaultList(ctx context.Context, s *browser.Session) error {
	list := pages.NewVaultsPage(s)
	if err := s.Step(ctx, "open vaults", list.Open); err != nil {
		return err
	}

	var count int
	if err := s.Step(ctx, "vaults listed", func(ctx context.Context) error {
		n, err := list.VaultCount(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.New(errs.AssertionFailed, "vault list is empty")
		}
		count = n
		return nil
	}); err != nil {
		return err
	}

	if err := s.SoftStep(ctx, "vault names shown", func(ctx context.Context) error {
		names, err := list.VaultNames(ctx)
		if err != nil {
			return err
		}
		if len(names) != count {
			return errs.Newf(errs.AssertionFailed, "%d rows but %d names", count, len(names))
		}
		return expectNonEmpty(names, "vault names")
	}); err != nil {
		return err
	}

	return s.SoftStep(ctx, "APRs parse", func(ctx context.Context) error {
		aprs, err := list.APRs(ctx)
		if err != nil {
			return err
		}
		if len(aprs) == 0 {
			return errs.New(errs.AssertionFailed, "no APR values shown")
		}
		obs.From(ctx).Info("aprs_read", "count", len(aprs), "order", display.Ordering(aprs).String())
		return nil
	})
}

// SortByAPR clicks the APR header twice and asserts the column is then in
// descending order, or in whatever direction the header's aria-sort reports.
func SortByAPR(ctx context.Context, s *browser.Session) error {
	list := pages.NewVaultsPage(s)
	if err := s.Step(ctx, "open vaults", list.Open); err != nil {
		return err
	}
	if err := s.Step(ctx, "sort by APR", list.SortByAPR); err != nil {
		return err
	}

	dir, exposed := list.SortDirection(ctx)
	want := SortWant(dir, exposed)
	if !exposed {
		obs.From(ctx).Info("apr_sort_state_missing", "assuming", want.String())
	}

	return s.Step(ctx, "APRs ordered", func(ctx context.Context) error {
		aprs, err := list.APRs(ctx)
		if err != nil {
			return err
		}
		return expectSorted(aprs, want)
	})
}

// SortWant is the APR order expected after two header clicks: the
// direction the header reports through aria-sort, or descending when it
// reports none.
func SortWant(dir display.Order, ok bool) display.Order {
	if !ok {
		return display.Descending
	}
	return dir
}

// VaultDetail opens the first listed vault and reads its stats.
func VaultDetail(ctx context.Context, s *browser.Session) error {
	list := pages.NewVaultsPage(s)
	if err := s.Step(ctx, "open vaults", list.Open); err != nil {
		return err
	}

	var listedName string
	if err := s.SoftStep(ctx, "read first vault name", func(ctx context.Context) error {
		names, err := list.VaultNames(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return errs.New(errs.AssertionFailed, "no vault names")
		}
		listedName = strings.TrimSpace(names[0])
		return nil
	}); err != nil {
		return err
	}

	var detail *pages.VaultDetailPage
	if err := s.Step(ctx, "open first vault", func(ctx context.Context) error {
		var err error
		detail, err = list.OpenVault(ctx, 0)
		return err
	}); err != nil {
		return err
	}

	if err := s.SoftStep(ctx, "title matches listing", func(ctx context.Context) error {
		name, err := detail.Name(ctx)
		if err != nil {
			return err
		}
		if listedName == "" {
			return expectNonEmpty([]string{name}, "vault title")
		}
		return expectContains(name, listedName, "vault title")
	}); err != nil {
		return err
	}

	if err := s.SoftStep(ctx, "APR shown", func(ctx context.Context) error {
		_, err := detail.APR(ctx)
		return err
	}); err != nil {
		return err
	}

	return s.SoftStep(ctx, "TVL shown", func(ctx context.Context) error {
		_, err := detail.TVL(ctx)
		return err
	})
}
