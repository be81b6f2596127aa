package facade

// Command names from the §6 catalog. The wire contract is the name
// plus its params dict; every name below is sent through call()/
// callVoid() with lowerCamelCase param fields, matching the worker's
// naming convention.
const (
	cmdCreateSession                 = "create_session"
	cmdListSessions                  = "list_sessions"
	cmdGetSession                    = "get_session"
	cmdDeleteSession                 = "delete_session"
	cmdUpdateSessionTitle            = "update_session_title"
	cmdUpdateSessionWorkingDirectory = "update_session_working_directory"
	cmdUpdateSessionLastAccessed     = "update_session_last_accessed"

	cmdSendMessage          = "send_message"
	cmdStopGeneration       = "stop_generation"
	cmdRespondPermission    = "respond_permission"
	cmdRespondQuestion      = "respond_question"
	cmdSetApprovalMode      = "set_approval_mode"
	cmdSetExecutionMode     = "set_execution_mode"
	cmdGetQueue             = "get_queue"
	cmdRemoveFromQueue      = "remove_from_queue"
	cmdReorderQueue         = "reorder_queue"
	cmdSendQueuedImmediately = "send_queued_immediately"
	cmdEditQueuedMessage    = "edit_queued_message"

	cmdSetAPIKey            = "set_api_key"
	cmdSetStitchAPIKey      = "set_stitch_api_key"
	cmdSetRuntimeConfig     = "set_runtime_config"
	cmdSetModels            = "set_models"
	cmdSetSpecializedModels = "set_specialized_models"
	cmdSetMCPServers        = "set_mcp_servers"
	cmdSetSkills            = "set_skills"

	cmdDeepMemoryGet     = "deep_memory_get"
	cmdDeepMemorySet     = "deep_memory_set"
	cmdDiscoverCommands  = "discover_commands"
	cmdInstallCommand    = "install_command"
	cmdUninstallCommand  = "uninstall_command"
	cmdGetCommandContent = "get_command_content"
	cmdCreateCommand     = "create_command"
	cmdSubagentList      = "subagent_list"
	cmdSubagentCreate    = "subagent_create"

	cmdConnectorList   = "connector_list"
	cmdConnectorEnable = "connector_enable"
	cmdWorkflowList    = "workflow_list"
	cmdWorkflowRun     = "workflow_run"
	cmdCronList        = "cron_list"
	cmdCronSchedule    = "cron_schedule"
	cmdPolicyGet       = "policy_get"
	cmdPolicySet       = "policy_set"
	cmdHeartbeat       = "heartbeat"
	cmdIntegrationList = "integration_list"

	cmdRemoteAccessEnable  = "remote_access_enable"
	cmdRemoteAccessDisable = "remote_access_disable"
	cmdRemoteAccessStatus  = "remote_access_status"

	cmdGetTransportDiagnostics = "get_transport_diagnostics"
	cmdLogoutAndCleanup        = "logout_and_cleanup"
)
