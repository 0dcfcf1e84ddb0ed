package models

// ItemState qualifies the state of an item in the pipeline
type ItemState int

const (
	// ItemDiscovered is the initial state of an item parsed off a search page
	ItemDiscovered ItemState = iota
	// ItemDedupedSkip is the state of an item whose stable identifier was already recorded
	ItemDedupedSkip
	// ItemMetadataPending is the state of an item queued for the metadata stage
	ItemMetadataPending
	// ItemMetadataOK is the state after the photo page has been fetched and parsed
	ItemMetadataOK
	// ItemMetadataError is the terminal state of an item whose metadata stage failed
	ItemMetadataError
	// ItemDownloadPending is the state of an item queued for the download stage
	ItemDownloadPending
	// ItemDownloadOK is the state after the binary has been written to disk
	ItemDownloadOK
	// ItemDownloadError is the terminal state of an item whose download stage failed
	ItemDownloadError
	// ItemValidatePending is the state of an item queued for the validation stage
	ItemValidatePending
	// ItemPersisted is the terminal state of a fully validated and recorded item
	ItemPersisted
	// ItemValidateError is the terminal state of an item whose validation or persist failed
	ItemValidateError
	// ItemBanned is the terminal state of an item discarded because its author is banned
	ItemBanned
)

func (s ItemState) String() string {
	switch s {
	case ItemDiscovered:
		return "discovered"
	case ItemDedupedSkip:
		return "deduped-skip"
	case ItemMetadataPending:
		return "metadata-pending"
	case ItemMetadataOK:
		return "metadata-ok"
	case ItemMetadataError:
		return "metadata-error"
	case ItemDownloadPending:
		return "download-pending"
	case ItemDownloadOK:
		return "download-ok"
	case ItemDownloadError:
		return "download-error"
	case ItemValidatePending:
		return "validate-pending"
	case ItemPersisted:
		return "persisted"
	case ItemValidateError:
		return "validate-error"
	case ItemBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends an item's trip through the
// pipeline. The driving loop counts terminal outcomes to know when a
// batch is fully accounted for.
func (s ItemState) Terminal() bool {
	switch s {
	case ItemDedupedSkip, ItemMetadataError, ItemDownloadError, ItemValidateError, ItemPersisted, ItemBanned:
		return true
	default:
		return false
	}
}
