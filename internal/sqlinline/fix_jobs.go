package sqlinline

const QInsertFixJob = `--sql b1129574-890b-4c2d-8701-348b23d5bf3a
insert into fix_jobs(
  id,
  status,
  asset_ids,
  custom_instruction,
  outcomes,
  error_message,
  created_at,
  updated_at
) values (
  $1::uuid,
  'QUEUED',
  $2::jsonb,
  $3::text,
  '[]'::jsonb,
  '',
  now(),
  now()
) returning created_at, updated_at;
`

const QClaimFixJob = `--sql b01f9672-7346-4932-bfa8-90be21f7cdfb
with next_job as (
    select id
    from fix_jobs
    where status = 'QUEUED'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update fix_jobs
    set status = 'RUNNING', updated_at = now()
    where id in (select id from next_job)
    returning id::text, status, asset_ids, custom_instruction, outcomes, error_message, created_at, updated_at
)
select * from updated;
`

const QSelectFixJobByID = `--sql a105e0c1-1df3-46dc-b299-fb70c8d4b424
select
  id::text,
  status,
  asset_ids,
  custom_instruction,
  outcomes,
  error_message,
  created_at,
  updated_at
from fix_jobs
where id = $1::uuid
limit 1;
`

const QAppendFixJobOutcome = `--sql 29e487e6-0cda-4807-9863-93d1f08902a0
update fix_jobs
set outcomes = outcomes || jsonb_build_array($2::jsonb),
    updated_at = now()
where id = $1::uuid;
`

const QFinishFixJob = `--sql f180072c-a2f2-480d-9ae1-39f166696966
update fix_jobs
set status = $2::text,
    error_message = $3::text,
    updated_at = now()
where id = $1::uuid;
`
