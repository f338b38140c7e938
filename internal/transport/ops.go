package transport

// Host-driver command names. They name failing steps in errors and logs,
// and identify requests on the bridge wire.
const (
	OpStart             = "wlan_start"
	OpStop              = "wlan_stop"
	OpSetEventMask      = "wlan_set_event_mask"
	OpSetPolicy         = "wlan_ioctl_set_connection_policy"
	OpDeleteProfile     = "wlan_ioctl_del_profile"
	OpConnect           = "wlan_connect"
	OpDisconnect        = "wlan_disconnect"
	OpSetScanParams     = "wlan_ioctl_set_scan_params"
	OpScanResult        = "wlan_ioctl_get_scan_results"
	OpStatus            = "wlan_ioctl_statusget"
	OpCreateNVMemEntry  = "nvmem_create_entry"
	OpWriteAESKey       = "aes_write_key"
	OpSetPrefix         = "wlan_smart_config_set_prefix"
	OpStartProvisioning = "wlan_smart_config_start"
	OpProcessProvision  = "wlan_smart_config_process"
	OpIPConfig          = "netapp_ipconfig"
	OpPingSend          = "netapp_ping_send"
	OpGetHostByName     = "gethostbyname"
	OpMDNSAdvertise     = "mdns_advertiser"
	OpSocket            = "socket"
	OpConnectSocket     = "connect"
	OpSend              = "send"
	OpRecv              = "recv"
	OpSelect            = "select"
	OpCloseSocket       = "closesocket"
	OpPoll              = "poll"
)
