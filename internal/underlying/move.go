package underlying

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/platform"
	"github.com/hxsam/appifi/internal/xstat"
)

// Move renames the entry at src to target under policy, keeping its
// identity. Directories only accept None. For files, Parents leaves both the
// existing target and src untouched and reports the target with resolved
// set.
func Move(store xstat.Store, src, target string, kind xstat.Kind, policy Policy) (xstat.XStat, bool, error) {
	if !filepath.IsAbs(target) || !ValidName(filepath.Base(target)) {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "move", target, "invalid target path")
	}
	if kind == xstat.Directory && policy != None {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "move", target, "directories move with policy none only")
	}
	if policy == Skip {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "move", target, "policy skip not valid here")
	}
	if err := checkParent("move", filepath.Dir(target)); err != nil {
		return xstat.XStat{}, false, err
	}

	err := platform.RenameNoReplace(src, target)
	if err == nil {
		x, err := xstat.Read(store, target)
		return x, false, err
	}
	if !errors.Is(err, fs.ErrExist) {
		return xstat.XStat{}, false, errs.FromOS("move", src, err)
	}

	cerr := collision("move", target, kind)
	switch policy {
	case None:
		return xstat.XStat{}, false, cerr

	case Parents:
		if !errs.Is(cerr, errs.ECONFLICT) {
			return xstat.XStat{}, false, cerr
		}
		x, err := xstat.Read(store, target)
		return x, true, err

	case Replace:
		if !errs.Is(cerr, errs.ECONFLICT) {
			return xstat.XStat{}, false, cerr
		}
		xstat.Forget(store, target)
		if err := os.Rename(src, target); err != nil {
			return xstat.XStat{}, false, errs.FromOS("move", target, err)
		}
		x, err := xstat.Read(store, target)
		return x, true, err

	case Rename:
		if err := notSymlink("move", target); err != nil {
			return xstat.XStat{}, false, err
		}
		for range maxRenameAttempts {
			taken, err := names(filepath.Dir(target))
			if err != nil {
				return xstat.XStat{}, false, err
			}
			candidate := filepath.Join(filepath.Dir(target), Autoname(filepath.Base(target), taken, kind == xstat.File))
			err = platform.RenameNoReplace(src, candidate)
			if err == nil {
				x, err := xstat.Read(store, candidate)
				return x, true, err
			}
			if !errors.Is(err, fs.ErrExist) {
				return xstat.XStat{}, false, errs.FromOS("move", candidate, err)
			}
		}
		return xstat.XStat{}, false, errs.New(errs.EEXIST, "move", target, "no free name found")
	}
	return xstat.XStat{}, false, errs.New(errs.EINVAL, "move", target, "unknown policy "+policy.String())
}
