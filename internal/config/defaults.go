package config

const (
	defaultStateDir                 = "~/.local/share/direktori"
	defaultDatabaseDriver           = DriverPostgres
	defaultSQLiteFile               = "queue.db"
	defaultConnectTimeout           = 10
	defaultPoolName                 = "worker-1"
	defaultWorkers                  = 2
	defaultSubmitAttempts           = 2
	defaultSubmitRetryDelay         = 2
	defaultErrorRetryInterval       = 10
	defaultHeartbeatInterval        = 30
	defaultStaleSweepSchedule       = "@every 5m"
	defaultDrainTimeout             = 300
	defaultProgressInterval         = 60
	defaultBaseURL                  = "https://matchapro.web.bps.go.id/direktori-usaha"
	defaultStorageState             = "storage_state.json"
	defaultBrowserTimeoutMS         = 120000
	defaultBrowserLocale            = "id-ID"
	defaultBrowserTimezone          = "Asia/Jakarta"
	defaultBrowserWindowWidth       = 1366
	defaultBrowserWindowHeight      = 768
	defaultBrowserUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultTelemetryExportInterval  = 60
	defaultNotifyRequestTimeout     = 10
	defaultSelectorSearchInput      = `input[name="idsbr"]`
	defaultSelectorFilterButton     = "#filter-data"
	defaultSelectorEditButton       = `a.btn-edit-perusahaan[aria-label="Edit"]`
	defaultSelectorFormHeader       = "h4"
	defaultSelectorApprovalAlert    = "div.alert.alert-warning"
	defaultSelectorSubmit           = "#submit-final"
	defaultSelectorCancelSubmit     = "#cancel-submit-final"
	defaultSelectorBlockUI          = ".blockUI"
	defaultSelectorSwalConfirm      = "button.swal2-confirm"
	defaultSelectorSwalPopup        = ".swal2-popup"
	defaultSelectorCheckMap         = "#cek-peta"
	defaultSelectorConfirmConsisten = "#confirm-consistency"
	defaultSelectorIgnoreConsistent = "#ignore-consistency"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Database: Database{
			Driver:         defaultDatabaseDriver,
			ConnectTimeout: defaultConnectTimeout,
		},
		Workflow: Workflow{
			PoolName:           defaultPoolName,
			Workers:            defaultWorkers,
			SubmitAttempts:     defaultSubmitAttempts,
			SubmitRetryDelay:   defaultSubmitRetryDelay,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			StaleSweepSchedule: defaultStaleSweepSchedule,
			DrainTimeout:       defaultDrainTimeout,
			ProgressInterval:   defaultProgressInterval,
		},
		Browser: Browser{
			BaseURL:      defaultBaseURL,
			StorageState: defaultStorageState,
			TimeoutMS:    defaultBrowserTimeoutMS,
			UserAgent:    defaultBrowserUserAgent,
			Locale:       defaultBrowserLocale,
			Timezone:     defaultBrowserTimezone,
			WindowWidth:  defaultBrowserWindowWidth,
			WindowHeight: defaultBrowserWindowHeight,
			Selectors:    DefaultSelectors(),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Telemetry: Telemetry{
			ExportInterval: defaultTelemetryExportInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
	}
}

// DefaultSelectors returns the CSS selectors for the registry edit form.
func DefaultSelectors() Selectors {
	return Selectors{
		SearchInput:        defaultSelectorSearchInput,
		FilterButton:       defaultSelectorFilterButton,
		EditButton:         defaultSelectorEditButton,
		FormHeader:         defaultSelectorFormHeader,
		ApprovalAlert:      defaultSelectorApprovalAlert,
		Submit:             defaultSelectorSubmit,
		CancelSubmit:       defaultSelectorCancelSubmit,
		BlockUI:            defaultSelectorBlockUI,
		SwalConfirm:        defaultSelectorSwalConfirm,
		SwalPopup:          defaultSelectorSwalPopup,
		CheckMap:           defaultSelectorCheckMap,
		ConfirmConsistency: defaultSelectorConfirmConsisten,
		IgnoreConsistency:  defaultSelectorIgnoreConsistent,
	}
}
